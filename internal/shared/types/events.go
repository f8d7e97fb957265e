package types

// EventType identifies a guest event on the wire and in element listeners.
type EventType string

// Navigation lifecycle events.
const (
	EventDidStartLoading     EventType = "did-start-loading"
	EventDidFinishLoad       EventType = "did-finish-load"
	EventDidFailLoad         EventType = "did-fail-load"
	EventDOMReady            EventType = "dom-ready"
	EventWillNavigate        EventType = "will-navigate"
	EventDidNavigate         EventType = "did-navigate"
	EventDidNavigateInPage   EventType = "did-navigate-in-page"
	EventResponseDetails     EventType = "response-details"
	EventPageTitleSet        EventType = "page-title-set"
	EventPageFaviconUpdated  EventType = "page-favicon-updated"
	EventDidChangeThemeColor EventType = "did-change-theme-color"
)

// Attachment lifecycle events.
const (
	EventDidAttach EventType = "did-attach"
	EventDestroyed EventType = "destroyed"
	EventClose     EventType = "close"
)

// Guest-script and page events.
const (
	EventNewWindow           EventType = "new-window"
	EventIPCMessage          EventType = "ipc-message"
	EventConsoleMessage      EventType = "console-message"
	EventFoundInPage         EventType = "found-in-page"
	EventEnterHTMLFullScreen EventType = "enter-html-full-screen"
	EventMediaStartedPlaying EventType = "media-started-playing"
	EventMediaPaused         EventType = "media-paused"
)

// DevTools events.
const (
	EventDevToolsOpened  EventType = "devtools-opened"
	EventDevToolsClosed  EventType = "devtools-closed"
	EventDevToolsFocused EventType = "devtools-focused"
)

// Resize events. ElementResize reports the embedding element's new layout box;
// GuestResize reports the size the guest viewport actually applied. Resize is
// the combined notification emitted alongside GuestResize.
const (
	EventElementResize EventType = "element-resize"
	EventGuestResize   EventType = "guest-resize"
	EventResize        EventType = "resize"
)

// Event is one record on a guest session's event stream. Payload keys follow
// the wire names of the public surface (url, title, channel, args, ...).
type Event struct {
	Type    EventType              `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// NewEvent builds an event with an optional payload.
func NewEvent(t EventType, payload map[string]interface{}) Event {
	return Event{Type: t, Payload: payload}
}

// FindResult is the payload of a found-in-page event.
type FindResult struct {
	RequestID          int `json:"requestId"`
	Matches            int `json:"matches"`
	ActiveMatchOrdinal int `json:"activeMatchOrdinal"`
}

// ResponseDetails carries resource-response metadata for a main-frame load.
type ResponseDetails struct {
	NewURL           string              `json:"newURL"`
	Status           bool                `json:"status"`
	HTTPResponseCode int                 `json:"httpResponseCode"`
	RequestMethod    string              `json:"requestMethod"`
	Referrer         string              `json:"referrer"`
	Headers          map[string][]string `json:"headers"`
	ResourceType     string              `json:"resourceType"`
}
