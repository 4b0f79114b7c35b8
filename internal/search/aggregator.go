package search

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"medialib/searchservice/internal/domain"
	"medialib/searchservice/internal/metrics"
)

const (
	pagedFetchPages = 10

	windowSize     = 40
	titleWindows   = 3
	generalWindows = titleWindows / 2
)

// Search validates query, fans out to every provider serving its media type,
// and returns the deduplicated, relevance-ranked union. An invalid query
// yields an empty response without any upstream call. Provider failures only
// shrink the result; errors are ErrNoProviders or the caller's context error.
func (s *Service) Search(ctx context.Context, query domain.SearchQuery) (domain.SearchResponse, error) {
	validated, ok := ValidateQuery(query.Text, query.MediaType)
	if !ok {
		return domain.EmptySearchResponse(), nil
	}

	providers := s.providersFor(validated.MediaType)
	if len(providers) == 0 {
		return domain.EmptySearchResponse(), ErrNoProviders
	}

	startedAt := s.now()
	cacheKey := buildSearchCacheKey(validated)
	if !s.cacheDisabled {
		if cached, hit := s.cacheLookup(ctx, cacheKey, startedAt); hit {
			return cached, nil
		}
	}

	response, complete := s.aggregate(ctx, validated, providers)
	if err := ctx.Err(); err != nil {
		s.logger.Info("search abandoned by caller",
			slog.String("query", validated.Text),
			slog.String("error", err.Error()),
			slog.Int64("elapsedMs", s.now().Sub(startedAt).Milliseconds()),
		)
		return domain.EmptySearchResponse(), err
	}

	if !s.cacheDisabled && complete {
		s.cacheStore(ctx, cacheKey, response, s.now())
	}
	metrics.SearchResultsReturned.WithLabelValues(string(validated.MediaType)).Observe(float64(response.TotalResults))
	s.logger.Info("search completed",
		slog.String("query", validated.Text),
		slog.String("mediaType", string(validated.MediaType)),
		slog.Int("results", response.TotalResults),
		slog.Bool("complete", complete),
		slog.Int64("elapsedMs", s.now().Sub(startedAt).Milliseconds()),
	)
	return response, nil
}

// aggregate runs every provider concurrently and reports whether all of their
// calls succeeded; partial responses are not cached. Outcomes feed provider
// health only while the caller is still waiting.
func (s *Service) aggregate(ctx context.Context, query domain.SearchQuery, providers []Provider) (domain.SearchResponse, bool) {
	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	contributions := make([][]domain.SearchResult, len(providers))
	outcomes := make([]providerOutcome, len(providers))

	var wg sync.WaitGroup
	for i, provider := range providers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			contributions[i], outcomes[i] = s.collect(runCtx, query, provider)
		}()
	}
	wg.Wait()

	if ctx.Err() == nil {
		for i, provider := range providers {
			s.recordProviderOutcome(providerKey(provider), query.Text, outcomes[i], s.now())
		}
	}

	var merged []domain.SearchResult
	complete := true
	for i, items := range contributions {
		merged = append(merged, items...)
		if outcomes[i].failures > 0 || outcomes[i].calls == 0 {
			complete = false
		}
	}
	merged = Dedupe(merged)

	ranked := Rank(merged, query.Text)
	return domain.SearchResponse{
		Results:      ranked,
		TotalResults: len(ranked),
		HasMore:      false,
	}, complete
}

func (s *Service) collect(ctx context.Context, query domain.SearchQuery, provider Provider) ([]domain.SearchResult, providerOutcome) {
	name := providerKey(provider)
	if err := s.checkProviderAvailable(name, s.now()); err != nil {
		s.logger.Warn("provider skipped",
			slog.String("provider", name),
			slog.String("error", err.Error()),
		)
		return nil, providerOutcome{}
	}

	startedAt := s.now()
	var (
		items   []domain.SearchResult
		outcome providerOutcome
	)
	switch p := provider.(type) {
	case PagedProvider:
		if warmer, ok := provider.(GenreWarmer); ok {
			if err := warmer.WarmGenres(ctx, query.MediaType); err != nil {
				s.logger.Warn("genre warm-up failed, genres may be missing",
					slog.String("provider", name),
					slog.String("error", err.Error()),
				)
			}
		}
		items, outcome = s.collectPages(ctx, p, query)
	case OffsetProvider:
		items, outcome = s.collectWindows(ctx, p, query)
	}
	outcome.latency = s.now().Sub(startedAt)
	return items, outcome
}

// collectPages fetches pages 1..pagedFetchPages concurrently and flattens them
// in page order. A failed page contributes nothing.
func (s *Service) collectPages(ctx context.Context, provider PagedProvider, query domain.SearchQuery) ([]domain.SearchResult, providerOutcome) {
	name := providerKey(provider)
	pages := make([][]domain.SearchResult, pagedFetchPages)
	errs := make([]error, pagedFetchPages)

	var g errgroup.Group
	g.SetLimit(pagedFetchPages)
	for i := range pagedFetchPages {
		g.Go(func() error {
			page := i + 1
			if err := s.waitProviderRateLimit(ctx, name); err != nil {
				errs[i] = err
				return nil
			}
			result, err := provider.SearchPage(ctx, domain.PageRequest{
				Query:     query.Text,
				MediaType: query.MediaType,
				Page:      page,
			})
			if err != nil {
				errs[i] = err
				s.logger.Warn("provider page failed",
					slog.String("provider", name),
					slog.Int("page", page),
					slog.String("error", err.Error()),
				)
				return nil
			}
			pages[i] = result.Items
			return nil
		})
	}
	_ = g.Wait()

	var items []domain.SearchResult
	for _, page := range pages {
		items = append(items, page...)
	}
	return Dedupe(items), summarize(errs)
}

// collectWindows runs the title and general strategies together, merges them
// title-first, gates them with the book relevance check and dedupes.
func (s *Service) collectWindows(ctx context.Context, provider OffsetProvider, query domain.SearchQuery) ([]domain.SearchResult, providerOutcome) {
	name := providerKey(provider)
	plan := make([]domain.WindowRequest, 0, titleWindows+generalWindows)
	for i := range titleWindows {
		plan = append(plan, domain.WindowRequest{Query: query.Text, Offset: i * windowSize, Limit: windowSize, Strategy: domain.WindowStrategyTitle})
	}
	for i := range generalWindows {
		plan = append(plan, domain.WindowRequest{Query: query.Text, Offset: i * windowSize, Limit: windowSize, Strategy: domain.WindowStrategyGeneral})
	}

	windows := make([][]domain.SearchResult, len(plan))
	errs := make([]error, len(plan))

	var g errgroup.Group
	g.SetLimit(len(plan))
	for i, request := range plan {
		g.Go(func() error {
			if err := s.waitProviderRateLimit(ctx, name); err != nil {
				errs[i] = err
				return nil
			}
			result, err := provider.SearchWindow(ctx, request)
			if err != nil {
				errs[i] = err
				s.logger.Warn("provider window failed",
					slog.String("provider", name),
					slog.String("strategy", string(request.Strategy)),
					slog.Int("offset", request.Offset),
					slog.String("error", err.Error()),
				)
				return nil
			}
			windows[i] = result.Items
			return nil
		})
	}
	_ = g.Wait()

	var items []domain.SearchResult
	for _, window := range windows {
		items = append(items, window...)
	}
	if query.MediaType == domain.MediaTypeBook {
		items = filterRelevantBooks(items, query.Text)
	}
	return Dedupe(items), summarize(errs)
}

func summarize(errs []error) providerOutcome {
	outcome := providerOutcome{calls: len(errs)}
	for _, err := range errs {
		if err == nil {
			continue
		}
		outcome.failures++
		outcome.lastErr = err
		if isTimeoutError(err) {
			outcome.timeouts++
		}
	}
	return outcome
}
