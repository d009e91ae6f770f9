package nl2sql

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by every call when no model key was supplied.
var ErrNotConfigured = errors.New("SQL generation is not configured: set TEXTSQL_AI_API_KEY (or GROQ_API_KEY)")

const (
	ModeSQL     = "sql"
	ModeExplain = "explain"
	ModeChat    = "chat"
)

type Request struct {
	Question string
	Schema   string
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Translator turns a question into SQL.
type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

// Explainer describes a SQL statement in plain language.
type Explainer interface {
	Explain(ctx context.Context, sqlText string) (string, error)
}

// Assistant answers free-form questions unrelated to the store.
type Assistant interface {
	Chat(ctx context.Context, message string) (string, error)
}

// Model is everything the completion client offers.
type Model interface {
	Translator
	Explainer
	Assistant
}

// Disabled stands in for the completion client when no key is configured so
// that the rest of the process keeps working.
type Disabled struct{}

func (Disabled) Translate(context.Context, Request) (Result, error) {
	return Result{}, ErrNotConfigured
}

func (Disabled) Explain(context.Context, string) (string, error) { return "", ErrNotConfigured }

func (Disabled) Chat(context.Context, string) (string, error) { return "", ErrNotConfigured }
