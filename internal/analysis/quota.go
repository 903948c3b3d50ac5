package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/npezzotti/cryptoforum/internal/database"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

type dailyCounts struct {
	Date   string         `json:"date"`
	Counts map[string]int `json:"counts"`
}

// Quota limits how many analyses each user may run per UTC day. Counts
// start over when the date changes.
type Quota struct {
	mu    sync.Mutex
	limit int
	state dailyCounts
	repo  database.StateRepository
	log   zerolog.Logger
}

func NewQuota(repo database.StateRepository, limit int, logger zerolog.Logger) *Quota {
	return &Quota{
		limit: limit,
		state: dailyCounts{Counts: make(map[string]int)},
		repo:  repo,
		log:   logger,
	}
}

func (q *Quota) Load(ctx context.Context) {
	var state dailyCounts
	if _, err := q.repo.Load(ctx, database.KeyAnalysisCounts, &state); err != nil {
		q.log.Error().Err(err).Msg("load analysis counts, starting empty")
		state = dailyCounts{}
	}
	if state.Counts == nil {
		state.Counts = make(map[string]int)
	}

	q.mu.Lock()
	q.state = state
	q.mu.Unlock()
}

func (q *Quota) Limit() int {
	return q.limit
}

// Remaining returns how many analyses username has left today.
func (q *Quota) Remaining(username string, now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollLocked(now)
	return max(q.limit-q.state.Counts[username], 0)
}

// Consume records one analysis. It returns ErrQuotaExceeded, recording
// nothing, once the limit is reached.
func (q *Quota) Consume(username string, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollLocked(now)
	used := q.state.Counts[username]
	if used >= q.limit {
		return 0, ErrQuotaExceeded
	}

	q.state.Counts[username] = used + 1
	q.persistLocked()
	return q.limit - used - 1, nil
}

func (q *Quota) rollLocked(now time.Time) {
	today := now.UTC().Format(dateLayout)
	if q.state.Date == today {
		return
	}
	q.state = dailyCounts{Date: today, Counts: make(map[string]int)}
}

func (q *Quota) persistLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.repo.Save(ctx, database.KeyAnalysisCounts, q.state); err != nil {
		q.log.Error().Err(err).Msg("persist analysis counts")
	}
}
