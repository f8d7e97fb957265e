package types

import "strings"

// Size is a viewport or layout-box size in integral CSS pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Preferences is the immutable preference snapshot a guest session is created
// with. It is captured from the embedding element's attributes at first attach
// and travels with the session across ownership transfers.
type Preferences struct {
	NodeIntegration    bool              `json:"nodeintegration"`
	Preload            string            `json:"preload,omitempty"`
	UserAgent          string            `json:"useragent,omitempty"`
	HTTPReferrer       string            `json:"httpreferrer,omitempty"`
	AllowPopups        bool              `json:"allowpopups"`
	DisableWebSecurity bool              `json:"disablewebsecurity"`
	WebPreferences     map[string]string `json:"webpreferences,omitempty"`
}

// ParseWebPreferences parses the comma-separated key=value feature-flag list
// of the webpreferences attribute. A key without a value is treated as "true".
func ParseWebPreferences(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	prefs := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if k, v, ok := strings.Cut(part, "="); ok {
			prefs[strings.TrimSpace(k)] = strings.TrimSpace(v)
		} else {
			prefs[part] = "true"
		}
	}
	return prefs
}

// InputEvent is a synthetic input event forwarded to the guest.
type InputEvent struct {
	Type      string   `json:"type"` // keyDown, keyUp, char, mouseDown, mouseUp, mouseMove, mediaPlayPause
	KeyCode   string   `json:"keyCode,omitempty"`
	X         int      `json:"x,omitempty"`
	Y         int      `json:"y,omitempty"`
	Button    string   `json:"button,omitempty"`
	Modifiers []string `json:"modifiers,omitempty"`
}
