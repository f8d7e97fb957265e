package web

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/GriffinCanCode/EmbedOS/host/internal/content"
	"github.com/GriffinCanCode/EmbedOS/host/internal/content/web/script"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/logging"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/types"
	"go.uber.org/zap"
)

// handle implements content.Handle. Commands are queued onto a single worker
// goroutine, which keeps the event stream in issue order; Stop and Close are
// the only calls that bypass the queue.
type handle struct {
	id     string
	client *Client
	pool   *script.Pool
	prefs  types.Preferences
	log    *logging.Logger

	cmds   chan func()
	events chan types.Event
	done   chan struct{}
	once   sync.Once

	mu           sync.Mutex
	page         *Page
	url          string
	width        int
	height       int
	zoom         float64
	navCancel    context.CancelFunc
	findText     string
	findOrdinal  int
	devtools     bool
	mediaPlaying bool
	inbox        []script.Message
}

func newHandle(id string, client *Client, pool *script.Pool, prefs types.Preferences, log *logging.Logger) *handle {
	h := &handle{
		id:     id,
		client: client,
		pool:   pool,
		prefs:  prefs,
		log:    log.With(zap.String("handle", id)),
		cmds:   make(chan func(), 64),
		events: make(chan types.Event, 64),
		done:   make(chan struct{}),
		zoom:   1.0,
	}
	go h.run()
	return h
}

func (h *handle) run() {
	defer close(h.events)
	for {
		select {
		case fn := <-h.cmds:
			fn()
		case <-h.done:
			return
		}
	}
}

func (h *handle) enqueue(fn func()) {
	select {
	case h.cmds <- fn:
	case <-h.done:
	}
}

// emit runs on the worker goroutine only.
func (h *handle) emit(t types.EventType, payload map[string]interface{}) {
	select {
	case h.events <- types.NewEvent(t, payload):
	case <-h.done:
	}
}

func (h *handle) ID() string { return h.id }

func (h *handle) Events() <-chan types.Event { return h.events }

func (h *handle) Close() {
	h.once.Do(func() {
		h.Stop()
		close(h.done)
	})
}

// Stop cancels the in-flight load directly; queuing it behind the
// navigation it is meant to cancel would defeat the point.
func (h *handle) Stop() {
	h.mu.Lock()
	cancel := h.navCancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (h *handle) Navigate(url, referrer string) {
	h.enqueue(func() { h.navigate(url, referrer) })
}

func (h *handle) navigate(rawURL, referrer string) {
	if referrer == "" {
		referrer = h.prefs.HTTPReferrer
	}

	h.mu.Lock()
	current := h.url
	h.mu.Unlock()

	// A fragment-only change never refetches the document.
	if current != "" && rawURL != current &&
		stripFragment(rawURL) == stripFragment(current) && strings.Contains(rawURL, "#") {
		h.mu.Lock()
		h.url = rawURL
		h.mu.Unlock()
		h.emit(types.EventDidNavigateInPage, map[string]interface{}{
			"url":         rawURL,
			"isMainFrame": true,
		})
		return
	}

	h.mu.Lock()
	playing := h.mediaPlaying
	h.mediaPlaying = false
	h.mu.Unlock()
	if playing {
		h.emit(types.EventMediaPaused, nil)
	}

	h.emit(types.EventDidStartLoading, map[string]interface{}{"url": rawURL})
	h.emit(types.EventWillNavigate, map[string]interface{}{"url": rawURL})

	ctx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	h.navCancel = cancel
	h.mu.Unlock()

	resp, err := h.client.Fetch(ctx, rawURL, referrer)

	h.mu.Lock()
	h.navCancel = nil
	h.mu.Unlock()
	cancel()

	if err != nil {
		h.failLoad(rawURL, err.Error())
		return
	}

	finalURL := rawURL
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		finalURL = raw.Request.URL.String()
	}

	headers := make(map[string]interface{}, len(resp.Header()))
	for k, v := range resp.Header() {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	h.emit(types.EventResponseDetails, map[string]interface{}{
		"status":           true,
		"newURL":           finalURL,
		"originalURL":      rawURL,
		"httpResponseCode": resp.StatusCode(),
		"requestMethod":    "GET",
		"referrer":         referrer,
		"headers":          headers,
		"resourceType":     "mainFrame",
	})

	if code := resp.StatusCode(); code < 200 || code >= 400 {
		h.failLoad(finalURL, fmt.Sprintf("HTTP %d: %s", code, resp.Status()))
		return
	}

	page, err := parsePage(finalURL, resp.Body(), resp.Header().Get("Content-Type"))
	if err != nil {
		h.failLoad(finalURL, err.Error())
		return
	}

	h.mu.Lock()
	h.page = page
	h.url = finalURL
	h.findText = ""
	h.findOrdinal = 0
	h.inbox = nil
	h.mu.Unlock()

	h.emit(types.EventDidNavigate, map[string]interface{}{
		"url":              finalURL,
		"httpResponseCode": resp.StatusCode(),
		"httpStatusText":   resp.Status(),
	})
	h.emit(types.EventPageTitleSet, map[string]interface{}{
		"title":       page.Title,
		"explicitSet": true,
	})
	h.emit(types.EventPageFaviconUpdated, map[string]interface{}{
		"favicons": page.Favicons,
	})
	if page.ThemeColor != "" {
		h.emit(types.EventDidChangeThemeColor, map[string]interface{}{
			"themeColor": page.ThemeColor,
		})
	}

	if h.prefs.Preload != "" {
		h.runScript(h.prefs.Preload, nil)
	}

	h.emit(types.EventDOMReady, nil)
	h.emit(types.EventDidFinishLoad, nil)

	if page.Autoplay {
		h.mu.Lock()
		h.mediaPlaying = true
		h.mu.Unlock()
		h.emit(types.EventMediaStartedPlaying, nil)
	}

	h.log.Debug("load finished", zap.String("url", finalURL))
}

func (h *handle) failLoad(url, description string) {
	h.emit(types.EventDidFailLoad, map[string]interface{}{
		"validatedURL":     url,
		"errorDescription": description,
	})
	h.log.Warn("load failed", zap.String("url", url), zap.String("error", description))
}

func (h *handle) Resize(width, height int, applied content.ResizeCallback) {
	h.enqueue(func() {
		h.mu.Lock()
		h.width, h.height = width, height
		h.mu.Unlock()
		if applied != nil {
			applied(width, height)
		}
	})
}

func (h *handle) SetZoomFactor(factor float64) {
	h.enqueue(func() {
		h.mu.Lock()
		h.zoom = factor
		h.mu.Unlock()
	})
}

func (h *handle) ExecuteScript(source string, userGesture bool, done content.ScriptCallback) {
	h.enqueue(func() { h.runScript(source, done) })
}

// runScript runs on the worker goroutine; bridge callbacks emit directly.
func (h *handle) runScript(source string, done content.ScriptCallback) {
	h.mu.Lock()
	page := h.page
	pageURL := h.url
	messages := append([]script.Message(nil), h.inbox...)
	h.mu.Unlock()

	env := script.Env{
		PageURL:         pageURL,
		Messages:        messages,
		NodeIntegration: h.prefs.NodeIntegration,
		AllowPopups:     h.prefs.AllowPopups,
		OnConsole: func(level, message string) {
			h.emit(types.EventConsoleMessage, map[string]interface{}{
				"level":    level,
				"message":  message,
				"sourceId": pageURL,
			})
		},
		OnSend: func(channel string, args []interface{}) {
			h.emit(types.EventIPCMessage, map[string]interface{}{
				"channel": channel,
				"args":    args,
			})
		},
		OnOpenWindow: func(url string) {
			h.emit(types.EventNewWindow, map[string]interface{}{
				"url":         url,
				"disposition": "foreground-tab",
			})
		},
		OnFullscreen: func() {
			h.emit(types.EventEnterHTMLFullScreen, nil)
		},
		OnClose: func() {
			h.emit(types.EventClose, nil)
		},
	}
	if page != nil {
		env.Doc = page.doc
	}

	result, err := h.pool.Execute(context.Background(), source, env)
	if done != nil {
		if err != nil {
			done(nil, err)
			return
		}
		done(result.Value, nil)
	}
}

// DeliverMessage queues a host message. Guest scripts read the queue as
// host.messages; navigation to a new document discards it.
func (h *handle) DeliverMessage(channel string, args []interface{}) {
	h.enqueue(func() {
		h.mu.Lock()
		h.inbox = append(h.inbox, script.Message{Channel: channel, Args: args})
		if len(h.inbox) > 100 {
			h.inbox = h.inbox[len(h.inbox)-100:]
		}
		h.mu.Unlock()
	})
}

func (h *handle) SendInputEvent(ev types.InputEvent) {
	h.enqueue(func() {
		h.log.Debug("input event", zap.String("type", ev.Type))
	})
}

func (h *handle) FindInPage(requestID int, text string) {
	h.enqueue(func() {
		h.mu.Lock()
		page := h.page
		sameText := h.findText == text
		h.findText = text
		h.mu.Unlock()

		matches := 0
		if page != nil {
			matches = page.matchCount(text)
		}

		ordinal := 0
		if matches > 0 {
			h.mu.Lock()
			if sameText {
				h.findOrdinal = h.findOrdinal%matches + 1
			} else {
				h.findOrdinal = 1
			}
			ordinal = h.findOrdinal
			h.mu.Unlock()
		}

		h.emit(types.EventFoundInPage, map[string]interface{}{
			"requestId":          requestID,
			"matches":            matches,
			"activeMatchOrdinal": ordinal,
			"finalUpdate":        true,
		})
	})
}

func (h *handle) StopFindInPage(action string) {
	h.enqueue(func() {
		h.mu.Lock()
		h.findText = ""
		h.findOrdinal = 0
		h.mu.Unlock()
	})
}

func (h *handle) OpenDevTools() {
	h.enqueue(func() {
		h.mu.Lock()
		open := h.devtools
		h.devtools = true
		h.mu.Unlock()
		if !open {
			h.emit(types.EventDevToolsOpened, nil)
		}
	})
}

func (h *handle) CloseDevTools() {
	h.enqueue(func() {
		h.mu.Lock()
		open := h.devtools
		h.devtools = false
		h.mu.Unlock()
		if open {
			h.emit(types.EventDevToolsClosed, nil)
		}
	})
}

func (h *handle) FocusDevTools() {
	h.enqueue(func() {
		h.mu.Lock()
		open := h.devtools
		h.mu.Unlock()
		if open {
			h.emit(types.EventDevToolsFocused, nil)
		}
	})
}

func (h *handle) SetDevToolsTarget(other content.Handle) {
	h.enqueue(func() {
		h.log.Debug("devtools retargeted", zap.String("target", other.ID()))
	})
}

func stripFragment(rawURL string) string {
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
