package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/tschelli/lead-lander-sub001/common/httputil"
)

const healthCheckTimeout = 2 * time.Second

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// DepthFunc reports the delivery queue depth.
type DepthFunc func(ctx context.Context) (int, error)

type HealthHandler struct {
	service string
	depth   DepthFunc
	names   []string
	checks  map[string]CheckFunc
}

func NewHealthHandler(service string, depth DepthFunc) *HealthHandler {
	return &HealthHandler{service: service, depth: depth, checks: make(map[string]CheckFunc)}
}

// AddCheck registers a dependency probe. Not safe to call while serving.
func (h *HealthHandler) AddCheck(name string, fn CheckFunc) *HealthHandler {
	if _, ok := h.checks[name]; !ok {
		h.names = append(h.names, name)
		sort.Strings(h.names)
	}
	h.checks[name] = fn
	return h
}

type healthResponse struct {
	Status     string            `json:"status"`
	Service    string            `json:"service"`
	QueueDepth *int              `json:"queueDepth,omitempty"`
	Checks     map[string]string `json:"checks,omitempty"`
}

// Healthz answers 200 when every check passes and 503 otherwise.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Service: h.service}
	if len(h.names) > 0 {
		resp.Checks = make(map[string]string, len(h.names))
	}
	for _, name := range h.names {
		if err := h.checks[name](ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Checks[name] = "ok"
	}
	if h.depth != nil {
		if n, err := h.depth(ctx); err == nil {
			resp.QueueDepth = &n
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}
