// Package pipeline runs one question through schema introspection, SQL
// generation, execution, optional explanation and history recording.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/textsql/textsql/internal/nl2sql"
	"github.com/textsql/textsql/internal/observability"
	"github.com/textsql/textsql/internal/query"
)

var ErrEmptyQuestion = errors.New("question is required")

type Stage string

const (
	// StageResolve covers failures before the pipeline ran, such as an
	// unknown store.
	StageResolve  Stage = "resolve"
	StageSchema   Stage = "schema"
	StageGenerate Stage = "generate"
	StageExecute  Stage = "execute"
)

// StageError reports the stage at which an attempt was abandoned.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Session is the state one shell session or one HTTP request carries
// through the pipeline.
type Session struct {
	StorePath string
	Recorder  Recorder
	Explain   bool
}

// Attempt is everything known about one question after it ran.
type Attempt struct {
	Question     string
	SQL          string
	SQLGenerated bool
	Outcome      query.Outcome
	// Executed is false when the attempt stopped before the executor ran.
	Executed       bool
	Explanation    string
	ExplanationErr error
	// Stage and Err are set when the attempt was abandoned. A statement
	// error reported by the store is not abandonment; see Outcome.Error.
	Stage     Stage
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Failed reports whether the attempt produced no usable result.
func (a Attempt) Failed() bool {
	return a.Err != nil || a.Outcome.Failed()
}

// ErrorMessage is the text journaled for a failed attempt, or "".
func (a Attempt) ErrorMessage() string {
	if a.Err != nil {
		return a.Err.Error()
	}
	return a.Outcome.Error
}

type Options struct {
	Introspector query.Introspector
	Translator   nl2sql.Translator
	Explainer    nl2sql.Explainer
	Executor     query.Executor
	Logger       *slog.Logger
	Now          func() time.Time
}

type Pipeline struct {
	introspector query.Introspector
	translator   nl2sql.Translator
	explainer    nl2sql.Explainer
	executor     query.Executor
	logger       *slog.Logger
	now          func() time.Time
}

func New(opts Options) (*Pipeline, error) {
	if opts.Introspector == nil {
		return nil, fmt.Errorf("introspector is required")
	}
	if opts.Translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		introspector: opts.Introspector,
		translator:   opts.Translator,
		explainer:    opts.Explainer,
		executor:     opts.Executor,
		logger:       logger,
		now:          now,
	}, nil
}

// Run answers question against the session's store. The attempt is
// returned and recorded in every case. The error is a *StageError when
// schema reading, generation or opening the store failed; a statement
// rejected by the store is reported in Attempt.Outcome with a nil error.
func (p *Pipeline) Run(ctx context.Context, session *Session, question string) (Attempt, error) {
	if session == nil {
		return Attempt{}, fmt.Errorf("session is required")
	}
	if strings.TrimSpace(question) == "" {
		return Attempt{}, ErrEmptyQuestion
	}

	started := p.now()
	attempt := Attempt{Question: question, StartedAt: started}
	err := p.run(ctx, session, &attempt)
	attempt.Duration = p.now().Sub(started)

	p.logAttempt(ctx, attempt)
	p.record(ctx, session, attempt)
	return attempt, err
}

// Reject records an attempt that failed before it reached the pipeline,
// for example because the requested store could not be resolved.
func (p *Pipeline) Reject(ctx context.Context, session *Session, question string, cause error) Attempt {
	now := p.now()
	attempt := Attempt{Question: question, StartedAt: now, Stage: StageResolve, Err: cause}
	if session == nil {
		return attempt
	}
	p.logAttempt(ctx, attempt)
	p.record(ctx, session, attempt)
	return attempt
}

func (p *Pipeline) run(ctx context.Context, session *Session, attempt *Attempt) error {
	schema, err := p.introspector.Introspect(ctx, session.StorePath)
	if err != nil {
		return attempt.abandon(StageSchema, err)
	}

	generated, err := p.translator.Translate(ctx, nl2sql.Request{Question: attempt.Question, Schema: schema.String()})
	if err != nil {
		return attempt.abandon(StageGenerate, err)
	}
	attempt.SQL = generated.SQL
	attempt.SQLGenerated = true

	outcome, err := p.executor.Execute(ctx, session.StorePath, generated.SQL)
	if err != nil {
		return attempt.abandon(StageExecute, err)
	}
	attempt.Outcome = outcome
	attempt.Executed = true

	if session.Explain && p.explainer != nil && strings.TrimSpace(attempt.SQL) != "" {
		explanation, err := p.explainer.Explain(ctx, attempt.SQL)
		if err != nil {
			attempt.ExplanationErr = err
		} else {
			attempt.Explanation = explanation
		}
	}
	return nil
}

func (a *Attempt) abandon(stage Stage, err error) error {
	a.Stage = stage
	a.Err = err
	return &StageError{Stage: stage, Err: err}
}

func (p *Pipeline) record(ctx context.Context, session *Session, attempt Attempt) {
	if session.Recorder == nil {
		return
	}
	if err := session.Recorder.Record(ctx, attempt); err != nil {
		observability.IncrementHistoryWriteFailure()
		p.logger.ErrorContext(ctx, "history write failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pipeline) logAttempt(ctx context.Context, attempt Attempt) {
	attrs := []any{
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.Int("question_length", len(attempt.Question)),
		slog.Bool("sql_generated", attempt.SQLGenerated),
		slog.Duration("duration", attempt.Duration),
	}
	if attempt.Err != nil {
		attrs = append(attrs, slog.String("stage", string(attempt.Stage)), slog.String("error", attempt.Err.Error()))
		p.logger.WarnContext(ctx, "question abandoned", attrs...)
		return
	}
	attrs = append(attrs, slog.Bool("statement_failed", attempt.Outcome.Failed()))
	p.logger.InfoContext(ctx, "question answered", attrs...)
	p.logger.DebugContext(ctx, "question detail",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("question", attempt.Question),
		slog.String("sql", attempt.SQL),
	)
}
