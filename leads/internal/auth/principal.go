// Package auth authenticates admin API callers and decides what tenant data
// they may read or change.
package auth

import (
	"context"
	"slices"

	"github.com/tschelli/lead-lander-sub001/common/tokens"
)

// Principal is an authenticated operator.
type Principal struct {
	UserID     string
	Role       string
	ClientID   string
	AccountIDs []string
}

// FromClaims converts validated token claims.
func FromClaims(c *tokens.Claims) *Principal {
	return &Principal{
		UserID:     c.UserID,
		Role:       c.Role,
		ClientID:   c.ClientID,
		AccountIDs: append([]string(nil), c.AccountIDs...),
	}
}

func (p *Principal) IsSuperAdmin() bool { return p.Role == tokens.RoleSuperAdmin }

// accountScoped reports whether p only sees the accounts listed in its token.
func (p *Principal) accountScoped() bool {
	return p.Role == tokens.RoleAccountAdmin || p.Role == tokens.RoleAccountViewer
}

// CanRead reports whether p may read data of accountID under clientID.
func (p *Principal) CanRead(clientID, accountID string) bool {
	switch {
	case p.IsSuperAdmin():
		return true
	case p.ClientID != clientID:
		return false
	case p.Role == tokens.RoleClientAdmin:
		return true
	case p.accountScoped():
		return slices.Contains(p.AccountIDs, accountID)
	}
	return false
}

// CanWrite reports whether p may requeue deliveries of accountID under clientID.
func (p *Principal) CanWrite(clientID, accountID string) bool {
	if p.Role == tokens.RoleAccountViewer {
		return false
	}
	return p.CanRead(clientID, accountID)
}

// ClientScope resolves the client a listing runs against. Super admins name
// it explicitly; everyone else is pinned to their token's client. ok is
// false when no client can be determined or requested is another tenant.
func (p *Principal) ClientScope(requested string) (clientID string, ok bool) {
	if p.IsSuperAdmin() {
		return requested, requested != ""
	}
	if requested != "" && requested != p.ClientID {
		return "", false
	}
	return p.ClientID, p.ClientID != ""
}

// AccountScope returns the accounts a listing is restricted to; nil means all
// accounts of the client.
func (p *Principal) AccountScope() []string {
	if p.accountScoped() {
		if len(p.AccountIDs) == 0 {
			return []string{}
		}
		return append([]string(nil), p.AccountIDs...)
	}
	return nil
}

type contextKey string

const principalKey contextKey = "principal"

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext returns the principal stored by the middleware.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}
