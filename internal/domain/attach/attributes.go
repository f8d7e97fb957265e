package attach

import (
	"strconv"
	"strings"

	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/guest"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/types"
)

// Attributes is the recognized configuration surface of an embedding
// element. Partition becomes immutable once the element has ever attached.
type Attributes struct {
	Src                string           `json:"src,omitempty"`
	Partition          string           `json:"partition,omitempty"`
	Preload            string           `json:"preload,omitempty"`
	UserAgent          string           `json:"useragent,omitempty"`
	HTTPReferrer       string           `json:"httpreferrer,omitempty"`
	WebPreferences     string           `json:"webpreferences,omitempty"`
	NodeIntegration    bool             `json:"nodeintegration"`
	AllowPopups        bool             `json:"allowpopups"`
	DisableWebSecurity bool             `json:"disablewebsecurity"`
	DisableGuestResize bool             `json:"disableguestresize"`
	GuestInstance      guest.InstanceID `json:"guestinstance,omitempty"`
}

// Preferences captures the preference snapshot a session is created with.
func (a Attributes) Preferences() types.Preferences {
	return types.Preferences{
		NodeIntegration:    a.NodeIntegration,
		Preload:            a.Preload,
		UserAgent:          a.UserAgent,
		HTTPReferrer:       a.HTTPReferrer,
		AllowPopups:        a.AllowPopups,
		DisableWebSecurity: a.DisableWebSecurity,
		WebPreferences:     types.ParseWebPreferences(a.WebPreferences),
	}
}

// Attribute names accepted by Element.SetAttribute.
const (
	AttrSrc                = "src"
	AttrPartition          = "partition"
	AttrPreload            = "preload"
	AttrUserAgent          = "useragent"
	AttrHTTPReferrer       = "httpreferrer"
	AttrWebPreferences     = "webpreferences"
	AttrNodeIntegration    = "nodeintegration"
	AttrAllowPopups        = "allowpopups"
	AttrDisableWebSecurity = "disablewebsecurity"
	AttrDisableGuestResize = "disableguestresize"
	AttrGuestInstance      = "guestinstance"
)

// parseBoolAttr follows HTML boolean-attribute semantics: a present attribute
// with an empty value is true, otherwise the value is parsed.
func parseBoolAttr(value string) bool {
	if value == "" {
		return true
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && b
}
