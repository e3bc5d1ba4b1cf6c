package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"fwdctl/internal/forward"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// SuccessResponse represents the success response structure
type SuccessResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ForwardRequest is the body of create and update calls. Omitted optional
// fields clear the corresponding setting.
type ForwardRequest struct {
	Name       string  `json:"name"`
	Context    *string `json:"context,omitempty"`
	Namespace  *string `json:"namespace,omitempty"`
	LocalPort  *string `json:"localPort,omitempty"`
	RemotePort string  `json:"remotePort"`
}

// Definition converts the request into a definition with the given id.
func (r ForwardRequest) Definition(id string) forward.Definition {
	return forward.Definition{
		ID:         id,
		Name:       r.Name,
		Context:    normalize(r.Context),
		Namespace:  normalize(r.Namespace),
		LocalPort:  normalize(r.LocalPort),
		RemotePort: r.RemotePort,
	}
}

func normalize(p *string) *string {
	if v, ok := forward.Value(p); ok {
		return forward.Optional(v)
	}
	return nil
}

// LogsResponse carries the log buffer of one forward.
type LogsResponse struct {
	ID     string         `json:"id"`
	Status forward.Status `json:"status"`
	Logs   []string       `json:"logs"`
	// Run changes whenever the buffer was cleared, e.g. by stop and start.
	Run int `json:"run"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
	Service       string `json:"service"`
	Forwards      int    `json:"forwards"`
	LiveProcesses int    `json:"liveProcesses"`
}

// Handler serves the forward API.
type Handler struct {
	forwards Forwards
	version  string
}

func NewHandler(forwards Forwards, version string) *Handler {
	return &Handler{forwards: forwards, version: version}
}

func (h *Handler) errorResponse(c echo.Context, status int, errMsg string) error {
	return c.JSON(status, ErrorResponse{Success: false, Error: errMsg})
}

func (h *Handler) successResponse(c echo.Context, message string) error {
	return c.JSON(http.StatusOK, SuccessResponse{
		Success:   true,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) notFound(c echo.Context, id string) error {
	return h.errorResponse(c, http.StatusNotFound, "forward "+id+" not found")
}

func (h *Handler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:        "healthy",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Service:       "fwdctl",
		Forwards:      len(h.forwards.Snapshots()),
		LiveProcesses: h.forwards.LiveCount(),
	})
}

func (h *Handler) Version(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"version": h.version})
}

func (h *Handler) ListForwards(c echo.Context) error {
	return c.JSON(http.StatusOK, h.forwards.Snapshots())
}

func (h *Handler) GetForward(c echo.Context) error {
	id := c.Param("id")
	snap, ok := h.forwards.Snapshot(id)
	if !ok {
		return h.notFound(c, id)
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) CreateForward(c echo.Context) error {
	var req ForwardRequest
	if err := c.Bind(&req); err != nil {
		return h.errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	def := req.Definition(forward.NewID())
	if err := def.Validate(); err != nil {
		return h.errorResponse(c, http.StatusBadRequest, err.Error())
	}

	added := h.forwards.Add(def)
	snap, ok := h.forwards.Snapshot(added.ID)
	if !ok {
		return h.errorResponse(c, http.StatusServiceUnavailable, "forward was not added")
	}
	return c.JSON(http.StatusCreated, snap)
}

func (h *Handler) UpdateForward(c echo.Context) error {
	id := c.Param("id")
	current, ok := h.forwards.Snapshot(id)
	if !ok {
		return h.notFound(c, id)
	}

	var req ForwardRequest
	if err := c.Bind(&req); err != nil {
		return h.errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	merged := current.Definition.Merge(req.Definition(id))
	if err := merged.Validate(); err != nil {
		return h.errorResponse(c, http.StatusBadRequest, err.Error())
	}

	if _, ok := h.forwards.Edit(merged); !ok {
		return h.notFound(c, id)
	}
	snap, _ := h.forwards.Snapshot(id)
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) DeleteForward(c echo.Context) error {
	id := c.Param("id")
	if _, ok := h.forwards.Snapshot(id); !ok {
		return h.notFound(c, id)
	}
	h.forwards.Remove(id)
	return h.successResponse(c, "forward "+id+" removed")
}

func (h *Handler) StartForward(c echo.Context) error {
	return h.transition(c, h.forwards.Start)
}

func (h *Handler) StopForward(c echo.Context) error {
	return h.transition(c, h.forwards.Stop)
}

// transition applies op and answers with the state right after it. Start
// only queues a launch, so the returned status may still be the old one.
func (h *Handler) transition(c echo.Context, op func(id string)) error {
	id := c.Param("id")
	if _, ok := h.forwards.Snapshot(id); !ok {
		return h.notFound(c, id)
	}
	op(id)
	snap, ok := h.forwards.Snapshot(id)
	if !ok {
		return h.notFound(c, id)
	}
	return c.JSON(http.StatusAccepted, snap)
}

func (h *Handler) GetForwardLogs(c echo.Context) error {
	id := c.Param("id")
	snap, ok := h.forwards.Snapshot(id)
	if !ok {
		return h.notFound(c, id)
	}
	logs := snap.Logs
	if logs == nil {
		logs = []string{}
	}
	return c.JSON(http.StatusOK, LogsResponse{ID: id, Status: snap.Status, Logs: logs, Run: snap.LogRun})
}
