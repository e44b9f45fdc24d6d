package models

// Client is a tenant: the agency or operator that owns accounts.
type Client struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Account is a school or business a client generates leads for.
type Account struct {
	ID               string  `json:"id"`
	ClientID         string  `json:"clientId"`
	Name             string  `json:"name"`
	CRMConnectionID  *string `json:"crmConnectionId,omitempty"`
	DefaultProgramID *string `json:"defaultProgramId,omitempty"`
	Active           bool    `json:"active"`
}

// Location is a physical site (campus) of an account.
type Location struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
}

// Program is an offering a lead can be routed to.
type Program struct {
	ID           string `json:"id"`
	AccountID    string `json:"accountId"`
	Name         string `json:"name"`
	DisplayOrder int    `json:"displayOrder"`
	Active       bool   `json:"active"`
}

// CRMConnectionType selects the adapter variant.
type CRMConnectionType string

const (
	CRMWebhook CRMConnectionType = "webhook"
	CRMGeneric CRMConnectionType = "generic"
)

// CRMConnection describes where and how leads of an account are delivered.
type CRMConnection struct {
	ID       string            `json:"id"`
	ClientID string            `json:"clientId"`
	Type     CRMConnectionType `json:"type"`
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers,omitempty"`
	// Events lists the audit events this connection delivers on. Empty means all.
	Events      []string `json:"events,omitempty"`
	Secret      string   `json:"-"`
	Integration string   `json:"integration,omitempty"`
	Active      bool     `json:"active"`
}

// QuestionKind is how a quiz question is answered.
type QuestionKind string

const (
	QuestionSingleChoice QuestionKind = "single_choice"
	QuestionText         QuestionKind = "text"
)

// ConditionalOn shows a question only when QuestionID was answered with one of OptionIDs.
type ConditionalOn struct {
	QuestionID string   `json:"questionId"`
	OptionIDs  []string `json:"optionIds"`
}

type QuizQuestion struct {
	ID            string             `json:"id"`
	AccountID     string             `json:"accountId"`
	Prompt        string             `json:"prompt"`
	Kind          QuestionKind       `json:"kind"`
	DisplayOrder  int                `json:"displayOrder"`
	ConditionalOn *ConditionalOn     `json:"conditionalOn,omitempty"`
	DirectRoute   bool               `json:"directRoute"`
	Options       []QuizAnswerOption `json:"options"`
}

// Option returns the option with the given id.
func (q *QuizQuestion) Option(id string) (*QuizAnswerOption, bool) {
	for i := range q.Options {
		if q.Options[i].ID == id {
			return &q.Options[i], true
		}
	}
	return nil, false
}

type QuizAnswerOption struct {
	ID               string         `json:"id"`
	QuestionID       string         `json:"questionId"`
	Label            string         `json:"label"`
	DisplayOrder     int            `json:"displayOrder"`
	PointAssignments map[string]int `json:"pointAssignments,omitempty"`
	RouteProgramID   *string        `json:"routeProgramId,omitempty"`
}
