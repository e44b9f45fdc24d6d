package seeder

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/tschelli/lead-lander-sub001/cli/internal/client"
)

var utmSources = []string{"google", "facebook", "instagram", "tiktok", "bing", "organic", "referral"}

// Generator produces intake payloads. It is not safe for concurrent use.
type Generator struct {
	cfg   *Config
	faker *gofakeit.Faker
	keys  []string
}

// NewGenerator seeds the faker from cfg; a zero seed uses the clock.
func NewGenerator(cfg *Config) *Generator {
	seed := cfg.Defaults.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{cfg: cfg, faker: gofakeit.New(seed)}
}

// Next returns the next fake lead. With probability DuplicateRate it reuses an
// idempotency key already handed out, which the API must collapse.
func (g *Generator) Next() client.SubmissionInput {
	d := g.cfg.Defaults
	f := g.faker

	first, last := f.FirstName(), f.LastName()
	consentedAt := time.Now().UTC().Add(-time.Duration(f.Number(1, 600)) * time.Second)

	lead := client.SubmissionInput{
		ClientID:  d.ClientID,
		AccountID: d.AccountID,
		Contact: client.Contact{
			FirstName: first,
			LastName:  last,
			Email:     f.Email(),
			Phone:     f.Phone(),
		},
		Metadata: map[string]any{
			"utm_source":   f.RandomString(utmSources),
			"utm_campaign": f.BuzzWord(),
			"landing_page": f.URL(),
			"seeded":       true,
		},
		Consent: client.Consent{
			Consented:   true,
			TextVersion: d.ConsentVersion,
			Timestamp:   &consentedAt,
		},
	}
	if len(d.ProgramIDs) > 0 {
		lead.ProgramID = f.RandomString(d.ProgramIDs)
	}
	if len(d.LocationIDs) > 0 {
		lead.LocationID = f.RandomString(d.LocationIDs)
	}
	for _, q := range g.cfg.Questions {
		lead.Answers = append(lead.Answers, client.Answer{QuestionID: q.ID, Value: f.RandomString(q.Values)})
	}

	if len(g.keys) > 0 && f.Float64Range(0, 1) < d.DuplicateRate {
		lead.IdempotencyKey = g.keys[f.Number(0, len(g.keys)-1)]
	} else {
		lead.IdempotencyKey = f.UUID()
		g.keys = append(g.keys, lead.IdempotencyKey)
	}
	return lead
}
