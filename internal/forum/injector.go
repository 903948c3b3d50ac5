package forum

import (
	"context"
	"time"

	"github.com/npezzotti/cryptoforum/internal/database"
	"github.com/npezzotti/cryptoforum/internal/news"
	"github.com/npezzotti/cryptoforum/internal/stats"
	"github.com/npezzotti/cryptoforum/internal/types"
	"github.com/rs/zerolog"
)

type CycleOutcome int

const (
	CycleSkipped CycleOutcome = iota
	CycleFailed
	CycleNoNewArticle
	CycleInjected
)

func (o CycleOutcome) String() string {
	switch o {
	case CycleSkipped:
		return "skipped"
	case CycleFailed:
		return "failed"
	case CycleNoNewArticle:
		return "no_new_article"
	case CycleInjected:
		return "injected"
	}
	return "unknown"
}

// NewsInjector appends at most one unseen article per cycle to the news
// room.
type NewsInjector struct {
	forum       *Forum
	fetcher     news.Fetcher
	minInterval time.Duration
	log         zerolog.Logger
}

func NewNewsInjector(f *Forum, fetcher news.Fetcher, minInterval time.Duration, logger zerolog.Logger) *NewsInjector {
	return &NewsInjector{
		forum:       f,
		fetcher:     fetcher,
		minInterval: minInterval,
		log:         logger,
	}
}

// Cycle runs one injection attempt. Upstream errors are logged and
// reported as CycleFailed; they never stop the caller's schedule.
func (n *NewsInjector) Cycle(ctx context.Context, now time.Time) CycleOutcome {
	if !n.forum.newsDue(now, n.minInterval) {
		return CycleSkipped
	}

	articles, err := n.fetcher.Latest(ctx)
	if err != nil {
		n.forum.stats.Incr(stats.MetricNewsFetchErrors)
		n.log.Error().Err(err).Msg("fetch news")
		return CycleFailed
	}

	// the forum may have changed while the fetch was in flight, so the
	// selection below works on fresh state
	article, ok := n.forum.injectNews(articles, now)
	if !ok {
		n.log.Debug().Int("articles", len(articles)).Msg("no new article")
		return CycleNoNewArticle
	}

	n.log.Info().Str("url", article.Url).Str("source", article.Source).Msg("news injected")
	return CycleInjected
}

func (f *Forum) newsDue(now time.Time, minInterval time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return now.UnixMilli()-f.lastNewsFetch >= minInterval.Milliseconds()
}

func (f *Forum) injectNews(articles []news.Article, now time.Time) (types.NewsArticle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	roomId := types.NewsRoomId
	seen := make(map[string]struct{})
	for _, item := range f.store.Get(roomId) {
		seen[item.Id()] = struct{}{}
		if item.Kind == types.ItemKindNews && item.News != nil {
			seen[item.News.Url] = struct{}{}
		}
	}

	for _, a := range articles {
		if _, dup := seen[a.Url]; dup {
			continue
		}

		article := types.NewsArticle{
			Id:          a.Url,
			Title:       a.Title,
			Url:         a.Url,
			ImageUrl:    a.ImageUrl,
			PublishedAt: a.PublishedOn,
			Source:      a.Source,
			Body:        a.Body,
			Reactions:   types.Reactions{},
		}
		item := types.NewsItem(article)

		f.store.Append(roomId, item)
		f.lastNewsFetch = now.UnixMilli()
		f.persistLocked(database.KeyLastNewsFetch, f.lastNewsFetch)
		f.stats.Incr(stats.MetricNewsInjected)

		f.notifyJoinedLocked(roomId, Event{Type: EventMessage, RoomId: roomId, Item: &item})
		f.incrementUnreadLocked(roomId, now.UnixMilli(), "")
		return article, true
	}

	return types.NewsArticle{}, false
}
