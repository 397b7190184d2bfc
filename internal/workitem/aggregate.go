package workitem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/p-blackswan/buffr/internal/cache"
	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/project"
)

const (
	DefaultCacheTTL  = 60 * time.Second
	defaultLimit     = 30
	defaultCacheSize = 256
	maxParallel      = 4
)

// Recorder receives per-source fetch outcomes.
type Recorder interface {
	RecordWorkItemFetch(source, result string)
}

// SourceError reports a source that could not be fetched.
type SourceError struct {
	Source string `json:"source"`
	Ref    string `json:"ref"`
	Error  string `json:"error"`
}

// Result is the merged work items of a project plus the sources that failed.
type Result struct {
	Items  []WorkItem    `json:"items"`
	Errors []SourceError `json:"errors"`
}

type cacheKey struct{ source, ref string }

// Aggregator fans out over a project's data sources.
type Aggregator struct {
	fetchers map[string]Fetcher
	cache    *cache.TTL[cacheKey, []WorkItem]
	limit    int
	recorder Recorder
	logger   zerolog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithFetcher sets the fetcher of a source type.
func WithFetcher(source string, f Fetcher) Option {
	return func(a *Aggregator) { a.fetchers[source] = f }
}

// WithCache sizes the per-source cache and sets how long items are reused.
func WithCache(size int, ttl time.Duration) Option {
	return func(a *Aggregator) { a.cache = cache.New[cacheKey, []WorkItem](size, ttl) }
}

// WithLimit caps the items fetched per source.
func WithLimit(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.limit = n
		}
	}
}

// WithRecorder sets the fetch outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(a *Aggregator) { a.recorder = r }
}

// NewAggregator creates an aggregator.
func NewAggregator(logger zerolog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		fetchers: make(map[string]Fetcher),
		cache:    cache.New[cacheKey, []WorkItem](defaultCacheSize, DefaultCacheTTL),
		limit:    defaultLimit,
		logger:   logger.With().Str("component", "workitem").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate returns the open work items of every source of p, in source
// order. A failing source is reported in Result.Errors; Aggregate itself
// only fails when ctx is done.
func (a *Aggregator) Aggregate(ctx context.Context, p *project.Project) (Result, error) {
	sources := p.Sources()
	items := make([][]WorkItem, len(sources))
	errs := make([]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, ds := range sources {
		g.Go(func() error {
			items[i], errs[i] = a.fetch(gctx, ds)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{Items: []WorkItem{}, Errors: []SourceError{}}
	for i, ds := range sources {
		if errs[i] != nil {
			res.Errors = append(res.Errors, SourceError{Source: ds.Type, Ref: ds.Ref, Error: errs[i].Error()})
			continue
		}
		res.Items = append(res.Items, items[i]...)
	}
	return res, nil
}

func (a *Aggregator) fetch(ctx context.Context, ds project.DataSource) ([]WorkItem, error) {
	key := cacheKey{ds.Type, ds.Ref}
	if cached, ok := a.cache.Get(key); ok {
		a.record(ds.Type, "hit")
		return cached, nil
	}
	f, ok := a.fetchers[ds.Type]
	if !ok {
		a.record(ds.Type, "unsupported")
		return nil, fmt.Errorf("%w: no adapter for source %q", perrors.ErrNotConfigured, ds.Type)
	}

	start := time.Now()
	got, err := f.Fetch(ctx, ds.Ref, a.limit)
	if err != nil {
		result := "error"
		if errors.Is(err, perrors.ErrNotConfigured) {
			result = "not_configured"
		}
		a.record(ds.Type, result)
		a.logger.Warn().Err(err).Str("source", ds.Type).Str("ref", ds.Ref).Msg("work item fetch failed")
		return nil, err
	}
	if got == nil {
		got = []WorkItem{}
	}
	a.cache.Set(key, got)
	a.record(ds.Type, "ok")
	a.logger.Debug().
		Str("source", ds.Type).
		Str("ref", ds.Ref).
		Int("count", len(got)).
		Dur("duration", time.Since(start)).
		Msg("fetched work items")
	return got, nil
}

func (a *Aggregator) record(source, result string) {
	if a.recorder != nil {
		a.recorder.RecordWorkItemFetch(source, result)
	}
}

// Invalidate drops every cached item, e.g. after credentials change.
func (a *Aggregator) Invalidate() {
	a.cache.Purge()
}
