package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/npezzotti/cryptoforum/internal/logging"
	"github.com/npezzotti/cryptoforum/internal/stats"
	"github.com/rs/zerolog"
)

var (
	ErrQuotaExceeded  = errors.New("daily analysis limit reached")
	ErrSuperseded     = errors.New("analysis superseded by a newer request")
	ErrInvalidRequest = errors.New("invalid analysis request")
)

type Response struct {
	Result
	Remaining int `json:"remaining"`
}

// Service runs quota-limited analyses on behalf of forum users.
type Service struct {
	analyzer Analyzer
	quota    *Quota
	tracker  *Tracker
	stats    stats.StatsProvider
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(analyzer Analyzer, quota *Quota, st stats.StatsProvider, logger zerolog.Logger) *Service {
	if st == nil {
		st = stats.NoopStats{}
	}
	return &Service{
		analyzer: analyzer,
		quota:    quota,
		tracker:  NewTracker(),
		stats:    st,
		log:      logger,
		now:      time.Now,
	}
}

func (s *Service) Remaining(username string) int {
	return s.quota.Remaining(username, s.now())
}

// Analyze asks the analyzer for a suggestion. Only successful analyses
// count against the quota.
func (s *Service) Analyze(ctx context.Context, username string, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	if s.quota.Remaining(username, s.now()) == 0 {
		return Response{}, ErrQuotaExceeded
	}

	tag := s.tracker.Begin(username)
	res, err := s.analyzer.Analyze(ctx, req)
	if ferr := s.tracker.Finish(username, tag); ferr != nil {
		s.log.Debug().Str(logging.FieldUsername, username).Str("crypto", req.CryptoName).Msg("dropping superseded analysis")
		return Response{}, ferr
	}
	if err != nil {
		s.log.Error().Err(err).Str(logging.FieldUsername, username).Str("crypto", req.CryptoName).Msg("analysis failed")
		return Response{}, err
	}

	remaining, err := s.quota.Consume(username, s.now())
	if err != nil {
		return Response{}, err
	}
	s.stats.Incr(stats.MetricAnalyses)

	return Response{Result: res, Remaining: remaining}, nil
}
