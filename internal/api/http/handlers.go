// Package http exposes the host control plane over REST. Embedders drive
// element lifecycle, navigation, and guest commands here; the event stream
// lives on the websocket endpoint.
package http

import (
	"net/http"
	"time"

	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/attach"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/guest"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/permission"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/logging"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/id"
	"github.com/GriffinCanCode/EmbedOS/host/internal/shared/types"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// scriptWait bounds how long an execute request blocks on the sandbox.
const scriptWait = 10 * time.Second

// Handlers is the REST handler set.
type Handlers struct {
	coord   *attach.Coordinator
	broker  *permission.Broker
	metrics *monitoring.Metrics
	log     *logging.Logger
	started time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(coord *attach.Coordinator, broker *permission.Broker, metrics *monitoring.Metrics, log *logging.Logger) *Handlers {
	if log == nil {
		log = logging.NewDefault()
	}
	return &Handlers{
		coord:   coord,
		broker:  broker,
		metrics: metrics,
		log:     log.Named("api"),
		started: time.Now(),
	}
}

// Register wires all routes onto the router.
func (h *Handlers) Register(r *gin.Engine) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.metrics.Gatherer(), promhttp.HandlerOpts{})))

	r.POST("/windows", h.CreateWindow)
	r.POST("/windows/:id/zoom", h.SetWindowZoom)

	r.POST("/windows/:id/elements", h.CreateElement)
	r.GET("/elements", h.ListElements)
	r.GET("/elements/:id", h.GetElement)
	r.DELETE("/elements/:id", h.DestroyElement)

	r.POST("/elements/:id/insert", h.InsertElement)
	r.POST("/elements/:id/remove", h.RemoveElement)
	r.PATCH("/elements/:id/attributes", h.SetAttributes)

	r.POST("/elements/:id/navigate", h.Navigate)
	r.POST("/elements/:id/reload", h.Reload)
	r.POST("/elements/:id/stop", h.Stop)
	r.POST("/elements/:id/back", h.GoBack)
	r.POST("/elements/:id/forward", h.GoForward)
	r.POST("/elements/:id/clear-history", h.ClearHistory)

	r.POST("/elements/:id/execute", h.ExecuteScript)
	r.POST("/elements/:id/send", h.Send)
	r.POST("/elements/:id/input", h.SendInputEvent)
	r.POST("/elements/:id/find", h.FindInPage)
	r.POST("/elements/:id/find/stop", h.StopFindInPage)

	r.POST("/elements/:id/devtools/open", h.OpenDevTools)
	r.POST("/elements/:id/devtools/close", h.CloseDevTools)
	r.POST("/elements/:id/devtools/focus", h.FocusDevTools)

	r.GET("/elements/:id/zoom", h.GetZoomLevel)
	r.POST("/elements/:id/zoom", h.SetZoomLevel)

	r.POST("/elements/:id/layout-resize", h.LayoutResize)
	r.POST("/elements/:id/resize", h.ManualResize)

	r.POST("/permissions/request", h.RequestPermission)
}

func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "EmbedOS Host",
		"version": "1.0.0",
	})
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"uptime_sec": int(time.Since(h.started).Seconds()),
		"attachment": h.coord.Stats(),
	})
}

// element resolves the :id path parameter or writes an error response.
func (h *Handlers) element(c *gin.Context) (*attach.Element, bool) {
	el, ok := h.coord.Element(id.ElementID(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown element"})
		return nil, false
	}
	return el, true
}

// fail maps domain errors onto HTTP statuses.
func fail(c *gin.Context, err error) {
	switch {
	case attach.IsNotAttached(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err == attach.ErrElementDestroyed:
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handlers) CreateWindow(c *gin.Context) {
	var req struct {
		ZoomFactor float64 `json:"zoomFactor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	win := h.coord.CreateWindow(req.ZoomFactor)
	c.JSON(http.StatusCreated, gin.H{"id": win.ID(), "zoomFactor": win.ZoomFactor()})
}

func (h *Handlers) SetWindowZoom(c *gin.Context) {
	win, ok := h.coord.Window(id.WindowID(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown window"})
		return
	}
	var req struct {
		ZoomFactor float64 `json:"zoomFactor" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	win.SetZoomFactor(req.ZoomFactor)
	c.JSON(http.StatusOK, gin.H{"id": win.ID(), "zoomFactor": win.ZoomFactor()})
}

func (h *Handlers) CreateElement(c *gin.Context) {
	win, ok := h.coord.Window(id.WindowID(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown window"})
		return
	}
	var attrs attach.Attributes
	if err := c.ShouldBindJSON(&attrs); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	el := h.coord.CreateElement(win, attrs)
	c.JSON(http.StatusCreated, elementView(el))
}

func (h *Handlers) ListElements(c *gin.Context) {
	elements := h.coord.Elements()
	views := make([]gin.H, 0, len(elements))
	for _, el := range elements {
		views = append(views, elementView(el))
	}
	c.JSON(http.StatusOK, gin.H{"elements": views})
}

func (h *Handlers) GetElement(c *gin.Context) {
	el, ok := h.element(c)
	if !ok {
		return
	}
	view := elementView(el)
	if handle, err := el.ContentHandle(); err == nil {
		view["contentHandle"] = handle.ID()
	}
	view["canGoBack"] = el.CanGoBack()
	view["canGoForward"] = el.CanGoForward()
	c.JSON(http.StatusOK, view)
}

func elementView(el *attach.Element) gin.H {
	return gin.H{
		"id":         el.ID(),
		"window":     el.Window().ID(),
		"state":      el.State(),
		"visible":    el.Visible(),
		"attributes": el.Attributes(),
	}
}

func (h *Handlers) DestroyElement(c *gin.Context) {
	el, ok := h.element(c)
	if !ok {
		return
	}
	h.coord.DestroyElement(el)
	c.JSON(http.StatusOK, gin.H{"destroyed": true})
}

func (h *Handlers) InsertElement(c *gin.Context) {
	el, ok := h.element(c)
	if !ok {
		return
	}
	if err := el.Insert(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, elementView(el))
}

func (h *Handlers) RemoveElement(c *gin.Context) {
	el, ok := h.element(c)
	if !ok {
		return
	}
	el.Remove()
	c.JSON(http.StatusOK, elementView(el))
}

func (h *Handlers) SetAttributes(c *gin.Context) {
	el, ok := h.element(c)
	if !ok {
		return
	}
	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for name, value := range req {
		if err := el.SetAttribute(name, value); err != nil {
			fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, elementView(el))
}

func (h *Handlers) Navigate(c *gin.Context) {
	el, ok := h.element(c)
	if !ok {
		return
	}
	var req struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := el.Navigate(req.URL); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"url": req.URL})
}

func (h *Handlers) Reload(c *gin.Context) {
	h.simple(c, func(el *attach.Element) error { return el.Reload() })
}
func (h *Handlers) Stop(c *gin.Context) {
	h.simple(c, func(el *attach.Element) error { return el.Stop() })
}
func (h *Handlers) GoBack(c *gin.Context) {
	h.simple(c, func(el *attach.Element) error { return el.GoBack() })
}
func (h *Handlers) GoForward(c *gin.Context) {
	h.simple(c, func(el *attach.Element) error { return el.GoForward() })
}
func (h *Handlers) ClearHistory(c *gin.Context) {
	h.simple(c, func(el *attach.Element) error { return el.ClearHistory() })
}
func (h *Handlers) OpenDevTools(c *gin.Context) {
	h.simple(c, func(el *attach.Element) error { return el.OpenDevTools() })
}
func (h *Handlers) CloseDevTools(c *gin.Context) {
	h.simple(c, func(el *attach.Element) error { return el.CloseDevTools() })
}
func (h *Handlers) FocusDevTools(c *gin.Context) {
	h.simple(c, func(el *attach.Element) error { return el.FocusDevTools() })
}

func (h *Handlers) simple(c *gin.Context, op func(*attach.Element) error) {
	el, ok := h.element(c)
	if !ok {
		return
	}
	if err := op(el); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) ExecuteScript(c *gin.Context) {
	el, ok := h.element(c)
	if !ok {
		return
	}
	var req struct {
		Script      string `json:"script" binding:"required"`
		UserGesture bool   `json:"userGesture"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	type outcome struct {
		result interface{}
		err    error
	}
	done := make(chan outcome, 1)
	err := el.ExecuteJavaScript(req.Script, req.UserGesture, func(result interface{}, err error) {
		done <- outcome{result, err}
	})
	if err != nil {
		fail(c, err)
		return
	}

	select {
	case out := <-done:
		if out.err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": out.err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": out.result})
	case <-time.After(scriptWait):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "script execution timed out"})
	}
}

func (h *Handlers) Send(c *gin.Context) {
	el, ok := h.element(c)
	if !ok {
		return
	}
	var req struct {
		Channel string        `json:"channel" binding:"required"`
		Args    []interface{} `json:"args"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := el.Send(req.Channel, req.Args...); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"channel": req.Channel})
}

func (h *Handlers) SendInputEvent(c *gin.Context) {
	el, ok := h.element(c)
	if !ok {
		return
	}
	var ev types.InputEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := el.SendInputEvent(ev); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"type": ev.Type})
}

func (h *Handlers) FindInPage(c *gin.Context) {
	el, ok := h.element(c)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	requestID, err := el.FindInPage(req.Text)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"requestId": requestID})
}

func (h *Handlers) StopFindInPage(c *gin.Context) {
	el, ok := h.element(c)
	if !ok {
		return
	}
	var req struct {
		Action string `json:"action"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Action == "" {
		req.Action = "clearSelection"
	}
	if err := el.StopFindInPage(req.Action); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) GetZoomLevel(c *gin.Context) {
	el, ok := h.element(c)
	if !ok {
		return
	}
	level, err := el.ZoomLevel()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"level": level})
}

func (h *Handlers) SetZoomLevel(c *gin.Context) {
	el, ok := h.element(c)
	if !ok {
		return
	}
	var req struct {
		Level float64 `json:"level"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := el.SetZoomLevel(req.Level); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"level": req.Level})
}

// LayoutResize reports a layout-box change; the guest follows per the
// element's disableguestresize attribute.
func (h *Handlers) LayoutResize(c *gin.Context) {
	el, ok := h.element(c)
	if !ok {
		return
	}
	var req types.Size
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	el.NotifyResize(req.Width, req.Height)
	c.JSON(http.StatusAccepted, gin.H{"width": req.Width, "height": req.Height})
}

// ManualResize resizes the guest viewport regardless of disableguestresize.
func (h *Handlers) ManualResize(c *gin.Context) {
	el, ok := h.element(c)
	if !ok {
		return
	}
	var req types.Size
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := el.ResizeGuest(req.Width, req.Height); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"width": req.Width, "height": req.Height})
}

// RequestPermission arbitrates a guest permission request through the
// broker. MIDI requests with sysex decompose into two sub-requests.
func (h *Handlers) RequestPermission(c *gin.Context) {
	var req struct {
		Instance int64  `json:"instance" binding:"required"`
		Kind     string `json:"kind" binding:"required"`
		Sysex    bool   `json:"sysex"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, ok := h.coord.Registry().Get(guest.InstanceID(req.Instance))
	if !ok || !sess.Alive() {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown guest instance"})
		return
	}

	granted := make(chan bool, 1)
	respond := func(grant bool) { granted <- grant }
	if permission.Kind(req.Kind) == permission.KindMIDI {
		h.broker.RequestMIDI(sess.Partition(), sess.Handle(), req.Sysex, respond)
	} else {
		h.broker.Request(sess.Partition(), sess.Handle(), permission.Kind(req.Kind), respond)
	}

	select {
	case grant := <-granted:
		c.JSON(http.StatusOK, gin.H{"granted": grant})
	case <-time.After(30 * time.Second):
		// A handler that never answers behaves like a denial for the caller,
		// but the one-shot responder stays valid if it answers later.
		c.JSON(http.StatusOK, gin.H{"granted": false, "timeout": true})
	}
}
