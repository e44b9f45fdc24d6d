package crm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

// DeliverFunc is integrator code behind a generic connection. It returns the
// CRM's lead id; an empty id falls back to the submission id. Returning a
// *PermanentError stops retries; any other error is retried.
type DeliverFunc func(ctx context.Context, conn *models.CRMConnection, sub *models.Submission) (string, error)

var (
	genericMu       sync.RWMutex
	genericRegistry = map[string]DeliverFunc{}
)

// RegisterGeneric makes fn available to generic connections whose integration is name.
func RegisterGeneric(name string, fn DeliverFunc) {
	genericMu.Lock()
	defer genericMu.Unlock()
	genericRegistry[name] = fn
}

func lookupGeneric(name string) (DeliverFunc, bool) {
	genericMu.RLock()
	defer genericMu.RUnlock()
	fn, ok := genericRegistry[name]
	return fn, ok
}

// GenericAdapter dispatches to a registered DeliverFunc.
type GenericAdapter struct {
	conn models.CRMConnection
}

func newGeneric(conn *models.CRMConnection) *GenericAdapter {
	return &GenericAdapter{conn: *conn}
}

func (g *GenericAdapter) Type() models.CRMConnectionType {
	return models.CRMGeneric
}

func (g *GenericAdapter) Accepts(event string) bool {
	return acceptsEvent(g.conn.Events, event)
}

func (g *GenericAdapter) Deliver(ctx context.Context, sub *models.Submission) Result {
	fn, ok := lookupGeneric(g.conn.Integration)
	if !ok {
		return Result{
			Outcome: models.OutcomePermanentFailure,
			Err:     &PermanentError{Err: fmt.Errorf("no generic integration %q registered", g.conn.Integration)},
		}
	}

	id, err := fn(ctx, &g.conn, sub)
	if err != nil {
		return ResultFromError(err)
	}
	if id == "" {
		id = sub.ID
	}
	return Result{Outcome: models.OutcomeSuccess, CRMLeadID: id}
}
