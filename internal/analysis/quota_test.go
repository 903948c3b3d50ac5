package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/npezzotti/cryptoforum/internal/database"
	"github.com/npezzotti/cryptoforum/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuota(t *testing.T) {
	repo := database.NewMemoryRepository()
	q := NewQuota(repo, 2, testutil.TestLogger(t))
	day := time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)

	assert.Equal(t, 2, q.Remaining("alice", day))

	left, err := q.Consume("alice", day)
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	left, err = q.Consume("alice", day.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, left)

	_, err = q.Consume("alice", day.Add(59*time.Minute))
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, 2, q.Remaining("bob", day), "expected counts to be per user")

	var stored dailyCounts
	_, err = repo.Load(context.Background(), database.KeyAnalysisCounts, &stored)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09", stored.Date)
	assert.Equal(t, 2, stored.Counts["alice"])

	reloaded := NewQuota(repo, 2, testutil.TestLogger(t))
	reloaded.Load(context.Background())
	assert.Zero(t, reloaded.Remaining("alice", day))

	nextDay := day.Add(2 * time.Hour)
	assert.Equal(t, 2, reloaded.Remaining("alice", nextDay), "expected a new day to reset counts")
}

func TestQuota_LoadMalformed(t *testing.T) {
	repo := database.NewMemoryRepository()
	repo.SetRaw(database.KeyAnalysisCounts, []byte(`{"date":5}`))

	q := NewQuota(repo, 5, testutil.TestLogger(t))
	q.Load(context.Background())

	assert.Equal(t, 5, q.Remaining("alice", time.Now()))
}
