package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tschelli/lead-lander-sub001/common/httputil"
	"github.com/tschelli/lead-lander-sub001/leads/internal/intakestats"
)

type StatsReader interface {
	GetStats(ctx context.Context, clientID string) (*intakestats.Stats, error)
}

// StatsHandler serves per-client intake volume to client-level operators.
type StatsHandler struct {
	reader StatsReader
	logger *slog.Logger
}

func NewStatsHandler(reader StatsReader, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{reader: reader, logger: logger}
}

// Get handles GET /v1/admin/stats. Account-scoped roles see only their
// accounts, so client-wide volume is not available to them.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if p.AccountScope() != nil {
		httputil.WriteCodedError(w, http.StatusForbidden, "forbidden", "intake stats require a client-level role")
		return
	}

	requested := r.URL.Query().Get("clientId")
	clientID, ok := p.ClientScope(requested)
	if !ok {
		if p.IsSuperAdmin() {
			httputil.WriteValidationError(w, []httputil.FieldError{{Field: "clientId", Message: "is required"}})
			return
		}
		httputil.WriteCodedError(w, http.StatusForbidden, "forbidden", "forbidden")
		return
	}

	stats, err := h.reader.GetStats(r.Context(), clientID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
