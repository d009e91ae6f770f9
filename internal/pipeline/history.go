package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/textsql/textsql/internal/catalog"
)

// Recorder journals attempts. Implementations must not modify an entry
// once written.
type Recorder interface {
	Record(ctx context.Context, attempt Attempt) error
}

// MemoryHistory keeps every attempt of one shell session in memory.
type MemoryHistory struct {
	mu      sync.Mutex
	entries []Attempt
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func (h *MemoryHistory) Record(_ context.Context, attempt Attempt) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, attempt)
	return nil
}

// Entries returns a copy of the history, oldest first.
func (h *MemoryHistory) Entries() []Attempt {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Attempt, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *MemoryHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Last returns the most recent attempt.
func (h *MemoryHistory) Last() (Attempt, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return Attempt{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Journal is the part of the catalog repository the persisted recorder
// writes to.
type Journal interface {
	InsertQueryRecord(ctx context.Context, in catalog.InsertQueryRecordInput) (catalog.QueryRecord, error)
}

// UserJournal writes one query record per attempt for a single user.
type UserJournal struct {
	Journal Journal
	UserID  int64
}

func (j UserJournal) Record(ctx context.Context, attempt Attempt) error {
	if j.Journal == nil {
		return fmt.Errorf("journal is not configured")
	}
	if _, err := j.Journal.InsertQueryRecord(ctx, RecordInput(j.UserID, attempt)); err != nil {
		return fmt.Errorf("insert query record: %w", err)
	}
	return nil
}

// RecordInput maps an attempt onto a query record. SQL is null only when
// generation never produced any.
func RecordInput(userID int64, attempt Attempt) catalog.InsertQueryRecordInput {
	in := catalog.InsertQueryRecordInput{
		UserID:   userID,
		Question: attempt.Question,
	}
	if attempt.SQLGenerated {
		sqlText := attempt.SQL
		in.SQLQuery = &sqlText
	}
	seconds := attempt.Duration.Seconds()
	in.ExecutionTime = &seconds
	if message := attempt.ErrorMessage(); message != "" {
		in.ErrorMessage = &message
	}
	return in
}
