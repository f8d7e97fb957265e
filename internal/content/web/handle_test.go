package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GriffinCanCode/EmbedOS/host/internal/content"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/logging"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/types"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Home</title></head><body><p>welcome home</p></body></html>`))
	})
	mux.HandleFunc("/video", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Clips</title></head><body><video autoplay src="clip.mp4"></video></body></html>`))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestHandle(t *testing.T, prefs types.Preferences) content.Handle {
	t.Helper()
	eng, err := NewEngine(Config{FetchTimeout: 5 * time.Second, ScriptTimeout: time.Second, PoolSize: 1}, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { eng.Close() })

	h, err := eng.Create(context.Background(), "persist:test", prefs)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(h.Close)
	return h
}

// collectUntil reads events until one of type last arrives.
func collectUntil(t *testing.T, h content.Handle, last types.EventType) []types.Event {
	t.Helper()
	var out []types.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-h.Events():
			if !ok {
				t.Fatalf("stream closed while waiting for %s (got %d events)", last, len(out))
			}
			out = append(out, ev)
			if ev.Type == last {
				return out
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s (got %v)", last, eventTypes(out))
		}
	}
}

func eventTypes(evs []types.Event) []types.EventType {
	out := make([]types.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func indexOf(evs []types.Event, t types.EventType) int {
	for i, ev := range evs {
		if ev.Type == t {
			return i
		}
	}
	return -1
}

func TestNavigationEventOrder(t *testing.T) {
	srv := testServer(t)
	h := newTestHandle(t, types.Preferences{})

	h.Navigate(srv.URL+"/", "")
	evs := collectUntil(t, h, types.EventDidFinishLoad)

	order := []types.EventType{
		types.EventDidStartLoading,
		types.EventWillNavigate,
		types.EventResponseDetails,
		types.EventDidNavigate,
		types.EventPageTitleSet,
		types.EventPageFaviconUpdated,
		types.EventDOMReady,
		types.EventDidFinishLoad,
	}
	prev := -1
	for _, want := range order {
		i := indexOf(evs, want)
		if i < 0 {
			t.Fatalf("missing %s in %v", want, eventTypes(evs))
		}
		if i < prev {
			t.Fatalf("%s out of order in %v", want, eventTypes(evs))
		}
		prev = i
	}

	title := evs[indexOf(evs, types.EventPageTitleSet)]
	if title.Payload["title"] != "Home" {
		t.Errorf("title = %v", title.Payload["title"])
	}
}

func TestNavigationFailureEmitsDidFailLoad(t *testing.T) {
	srv := testServer(t)
	h := newTestHandle(t, types.Preferences{})

	h.Navigate(srv.URL+"/missing", "")
	evs := collectUntil(t, h, types.EventDidFailLoad)

	if indexOf(evs, types.EventDidNavigate) >= 0 {
		t.Error("did-navigate must not fire for a failed load")
	}
}

func TestFragmentNavigationIsInPage(t *testing.T) {
	srv := testServer(t)
	h := newTestHandle(t, types.Preferences{})

	h.Navigate(srv.URL+"/", "")
	collectUntil(t, h, types.EventDidFinishLoad)

	h.Navigate(srv.URL+"/#section", "")
	evs := collectUntil(t, h, types.EventDidNavigateInPage)

	if indexOf(evs, types.EventDidStartLoading) >= 0 {
		t.Error("fragment navigation must not refetch the document")
	}
}

func TestExecuteScriptBridges(t *testing.T) {
	srv := testServer(t)
	h := newTestHandle(t, types.Preferences{AllowPopups: true})

	h.Navigate(srv.URL+"/", "")
	collectUntil(t, h, types.EventDidFinishLoad)

	resultCh := make(chan interface{}, 1)
	h.ExecuteScript(`console.log("from guest"); host.send("chan", 7); window.open("https://example.com/"); 40 + 2`,
		false, func(result interface{}, err error) {
			if err != nil {
				t.Errorf("script error: %v", err)
			}
			resultCh <- result
		})

	evs := collectUntil(t, h, types.EventNewWindow)
	if i := indexOf(evs, types.EventConsoleMessage); i < 0 {
		t.Error("console-message not emitted")
	} else if evs[i].Payload["message"] != "from guest" {
		t.Errorf("console payload = %v", evs[i].Payload)
	}
	if i := indexOf(evs, types.EventIPCMessage); i < 0 {
		t.Error("ipc-message not emitted")
	} else if evs[i].Payload["channel"] != "chan" {
		t.Errorf("ipc payload = %v", evs[i].Payload)
	}

	select {
	case result := <-resultCh:
		if result != int64(42) {
			t.Errorf("script result = %v", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("script callback never ran")
	}
}

func TestFindInPage(t *testing.T) {
	srv := testServer(t)
	h := newTestHandle(t, types.Preferences{})

	h.Navigate(srv.URL+"/", "")
	collectUntil(t, h, types.EventDidFinishLoad)

	h.FindInPage(1, "WELCOME")
	evs := collectUntil(t, h, types.EventFoundInPage)
	found := evs[indexOf(evs, types.EventFoundInPage)]
	if found.Payload["matches"] != 1 || found.Payload["requestId"] != 1 {
		t.Errorf("found-in-page payload = %v", found.Payload)
	}
}

func TestResizeReportsAppliedSize(t *testing.T) {
	h := newTestHandle(t, types.Preferences{})

	applied := make(chan [2]int, 1)
	h.Resize(640, 480, func(w, hgt int) { applied <- [2]int{w, hgt} })

	select {
	case got := <-applied:
		if got != [2]int{640, 480} {
			t.Errorf("applied = %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("resize callback never ran")
	}
}

func TestDeliveredMessagesReachGuestScripts(t *testing.T) {
	srv := testServer(t)
	h := newTestHandle(t, types.Preferences{})

	h.Navigate(srv.URL+"/", "")
	collectUntil(t, h, types.EventDidFinishLoad)

	h.DeliverMessage("greeting", []interface{}{"hello"})

	resultCh := make(chan interface{}, 1)
	h.ExecuteScript(`host.messages.length + ":" + host.messages[0].channel + ":" + host.messages[0].args[0]`,
		false, func(result interface{}, err error) {
			if err != nil {
				t.Errorf("script error: %v", err)
			}
			resultCh <- result
		})
	select {
	case result := <-resultCh:
		if result != "1:greeting:hello" {
			t.Errorf("script saw %v", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("script callback never ran")
	}

	// A new document starts with an empty queue.
	h.Navigate(srv.URL+"/video", "")
	collectUntil(t, h, types.EventDidFinishLoad)
	h.ExecuteScript(`host.messages.length`, false, func(result interface{}, err error) {
		if err != nil {
			t.Errorf("script error: %v", err)
		}
		resultCh <- result
	})
	select {
	case result := <-resultCh:
		if result != int64(0) {
			t.Errorf("queue length after navigation = %v, want 0", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("script callback never ran")
	}
}

func TestAutoplayMediaEvents(t *testing.T) {
	srv := testServer(t)
	h := newTestHandle(t, types.Preferences{})

	h.Navigate(srv.URL+"/video", "")
	collectUntil(t, h, types.EventMediaStartedPlaying)

	h.Navigate(srv.URL+"/", "")
	evs := collectUntil(t, h, types.EventDidFinishLoad)

	paused := indexOf(evs, types.EventMediaPaused)
	started := indexOf(evs, types.EventDidStartLoading)
	if paused < 0 || paused > started {
		t.Errorf("media-paused must precede the next load: %v", eventTypes(evs))
	}
	if indexOf(evs, types.EventMediaStartedPlaying) >= 0 {
		t.Error("page without autoplay media must not start playback")
	}
}

func TestDevToolsEvents(t *testing.T) {
	h := newTestHandle(t, types.Preferences{})

	h.OpenDevTools()
	h.OpenDevTools() // idempotent
	h.CloseDevTools()

	evs := collectUntil(t, h, types.EventDevToolsClosed)
	opened := 0
	for _, ev := range evs {
		if ev.Type == types.EventDevToolsOpened {
			opened++
		}
	}
	if opened != 1 {
		t.Errorf("devtools-opened fired %d times, want 1", opened)
	}
}
