package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

// MemoryCatalog is an in-process Catalog for tests and local runs.
type MemoryCatalog struct {
	mu          sync.RWMutex
	clients     map[string]models.Client
	accounts    map[string]models.Account
	locations   map[string]models.Location
	programs    map[string]models.Program
	connections map[string]models.CRMConnection
	questions   map[string]models.QuizQuestion
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		clients:     make(map[string]models.Client),
		accounts:    make(map[string]models.Account),
		locations:   make(map[string]models.Location),
		programs:    make(map[string]models.Program),
		connections: make(map[string]models.CRMConnection),
		questions:   make(map[string]models.QuizQuestion),
	}
}

func (c *MemoryCatalog) PutClient(v models.Client) *MemoryCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[v.ID] = v
	return c
}

func (c *MemoryCatalog) PutAccount(v models.Account) *MemoryCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[v.ID] = v
	return c
}

func (c *MemoryCatalog) PutLocation(v models.Location) *MemoryCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locations[v.ID] = v
	return c
}

func (c *MemoryCatalog) PutProgram(v models.Program) *MemoryCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.programs[v.ID] = v
	return c
}

func (c *MemoryCatalog) PutConnection(v models.CRMConnection) *MemoryCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connections[v.ID] = v
	return c
}

func (c *MemoryCatalog) PutQuestion(v models.QuizQuestion) *MemoryCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range v.Options {
		v.Options[i].QuestionID = v.ID
	}
	c.questions[v.ID] = v
	return c
}

func (c *MemoryCatalog) ResolveAccount(_ context.Context, clientID, accountID string) (*models.Account, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	client, ok := c.clients[clientID]
	if !ok || !client.Active {
		return nil, fmt.Errorf("%w: client %q", models.ErrUnknownEntity, clientID)
	}
	acct, ok := c.accounts[accountID]
	if !ok || !acct.Active || acct.ClientID != clientID {
		return nil, fmt.Errorf("%w: account %q", models.ErrUnknownEntity, accountID)
	}
	return &acct, nil
}

func (c *MemoryCatalog) ResolveProgram(_ context.Context, accountID, programID string) (*models.Program, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.programs[programID]
	if !ok || !p.Active || p.AccountID != accountID {
		return nil, fmt.Errorf("%w: program %q", models.ErrUnknownEntity, programID)
	}
	return &p, nil
}

func (c *MemoryCatalog) ResolveLocation(_ context.Context, accountID, locationID string) (*models.Location, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	l, ok := c.locations[locationID]
	if !ok || !l.Active || l.AccountID != accountID {
		return nil, fmt.Errorf("%w: location %q", models.ErrUnknownEntity, locationID)
	}
	return &l, nil
}

func (c *MemoryCatalog) ResolveConnection(_ context.Context, accountID string) (*models.CRMConnection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	acct, ok := c.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: account %q", models.ErrUnknownEntity, accountID)
	}
	if acct.CRMConnectionID == nil {
		return nil, ErrNoConnection
	}
	conn, ok := c.connections[*acct.CRMConnectionID]
	if !ok || !conn.Active {
		return nil, ErrNoConnection
	}
	return &conn, nil
}

func (c *MemoryCatalog) ListPrograms(_ context.Context, accountID string) ([]models.Program, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []models.Program
	for _, p := range c.programs {
		if p.AccountID == accountID && p.Active {
			out = append(out, p)
		}
	}
	SortPrograms(out)
	return out, nil
}

func (c *MemoryCatalog) ListQuizQuestions(_ context.Context, accountID string) ([]models.QuizQuestion, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []models.QuizQuestion
	for _, q := range c.questions {
		if q.AccountID != accountID {
			continue
		}
		q.Options = append([]models.QuizAnswerOption(nil), q.Options...)
		sort.SliceStable(q.Options, func(i, j int) bool {
			a, b := q.Options[i], q.Options[j]
			if a.DisplayOrder != b.DisplayOrder {
				return a.DisplayOrder < b.DisplayOrder
			}
			return a.ID < b.ID
		})
		out = append(out, q)
	}
	SortQuestions(out)
	return out, nil
}

// SortPrograms orders programs by display order, then id.
func SortPrograms(ps []models.Program) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].DisplayOrder != ps[j].DisplayOrder {
			return ps[i].DisplayOrder < ps[j].DisplayOrder
		}
		return ps[i].ID < ps[j].ID
	})
}

// SortQuestions orders questions by display order, then id.
func SortQuestions(qs []models.QuizQuestion) {
	sort.SliceStable(qs, func(i, j int) bool {
		if qs[i].DisplayOrder != qs[j].DisplayOrder {
			return qs[i].DisplayOrder < qs[j].DisplayOrder
		}
		return qs[i].ID < qs[j].ID
	})
}
