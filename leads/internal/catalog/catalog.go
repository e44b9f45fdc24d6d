// Package catalog is the read-only view of the tenant configuration: clients,
// accounts, locations, programs, quiz definitions and CRM connections.
package catalog

import (
	"context"
	"errors"

	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

// ErrNoConnection is returned when an account has no active CRM connection.
var ErrNoConnection = errors.New("no active crm connection")

// Catalog resolves tenant entities. Inactive entities resolve as unknown.
type Catalog interface {
	// ResolveAccount returns the active account if it belongs to an active clientID.
	ResolveAccount(ctx context.Context, clientID, accountID string) (*models.Account, error)
	ResolveProgram(ctx context.Context, accountID, programID string) (*models.Program, error)
	ResolveLocation(ctx context.Context, accountID, locationID string) (*models.Location, error)
	// ResolveConnection returns the account's CRM connection or ErrNoConnection.
	ResolveConnection(ctx context.Context, accountID string) (*models.CRMConnection, error)
	// ListPrograms returns the account's active programs ordered by display order, then id.
	ListPrograms(ctx context.Context, accountID string) ([]models.Program, error)
	// ListQuizQuestions returns questions with options, both ordered by display order, then id.
	ListQuizQuestions(ctx context.Context, accountID string) ([]models.QuizQuestion, error)
}
