package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/npezzotti/cryptoforum/internal/database"
	"github.com/npezzotti/cryptoforum/internal/stats"
	"github.com/npezzotti/cryptoforum/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context, req Request) (Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Result), args.Error(1)
}

func TestService_Analyze(t *testing.T) {
	analyzer := &mockAnalyzer{}
	defer analyzer.AssertExpectations(t)
	mockStats := &stats.MockStatsUpdater{}
	defer mockStats.AssertExpectations(t)

	req := Request{CryptoName: "Ethereum", CurrentPrice: 3100}
	res := Result{Position: PositionShort, EntryPrice: "3100", StopLoss: "3300", TakeProfit: "2800", Confidence: "55%"}

	analyzer.On("Analyze", mock.Anything, req).Return(Result{}, errors.New("boom")).Once()
	analyzer.On("Analyze", mock.Anything, req).Return(res, nil).Once()
	mockStats.On("Incr", stats.MetricAnalyses).Once()

	quota := NewQuota(database.NewMemoryRepository(), 1, testutil.TestLogger(t))
	svc := NewService(analyzer, quota, mockStats, testutil.TestLogger(t))

	_, err := svc.Analyze(context.Background(), "alice", Request{CryptoName: "Ethereum"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Analyze(context.Background(), "bob", req)
	assert.Error(t, err)
	assert.Equal(t, 1, svc.Remaining("bob"), "expected failures not to count")

	out, err := svc.Analyze(context.Background(), "alice", req)
	require.NoError(t, err)
	assert.Equal(t, res, out.Result)
	assert.Zero(t, out.Remaining)

	_, err = svc.Analyze(context.Background(), "alice", req)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestService_AnalyzeSuperseded(t *testing.T) {
	analyzer := &mockAnalyzer{}
	release := make(chan struct{})
	started := make(chan struct{})

	slow := Request{CryptoName: "Solana", CurrentPrice: 150}
	fast := Request{CryptoName: "Cardano", CurrentPrice: 0.5}
	analyzer.On("Analyze", mock.Anything, slow).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(Result{Position: PositionLong}, nil).Once()
	analyzer.On("Analyze", mock.Anything, fast).Return(Result{Position: PositionShort}, nil).Once()

	svc := NewService(analyzer, NewQuota(database.NewMemoryRepository(), 5, testutil.TestLogger(t)), nil, testutil.TestLogger(t))

	errc := make(chan error, 1)
	go func() {
		_, err := svc.Analyze(context.Background(), "alice", slow)
		errc <- err
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("slow analysis did not start")
	}

	out, err := svc.Analyze(context.Background(), "alice", fast)
	require.NoError(t, err)
	assert.Equal(t, PositionShort, out.Position)

	close(release)
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("slow analysis did not return")
	}
	assert.Equal(t, 4, svc.Remaining("alice"), "expected only the current request to count")
}

func TestTracker(t *testing.T) {
	tr := NewTracker()

	first := tr.Begin("alice")
	second := tr.Begin("alice")
	other := tr.Begin("bob")

	assert.NotEqual(t, first, second)
	assert.ErrorIs(t, tr.Finish("alice", first), ErrSuperseded)
	assert.NoError(t, tr.Finish("alice", second))
	assert.NoError(t, tr.Finish("bob", other))
	assert.ErrorIs(t, tr.Finish("bob", other), ErrSuperseded, "expected a tag to finish once")
}
