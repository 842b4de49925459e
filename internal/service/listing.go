package service

import (
	"context"
	"fmt"

	"stockroom/backend/internal/cache"
	"stockroom/backend/internal/domain"
	"stockroom/backend/internal/store"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// listPage serves one page of a collection. Without a search query the store
// paginates; with one, every row matching the status filter is fetched,
// fuzzily filtered on its projections and paginated here. Pages are cached
// under the scope's current generation.
func listPage[T any](ctx context.Context, s *Service, scope string, query domain.ListQuery, fetch func(context.Context, store.Filter) ([]T, int, error), project func(T) []string) (domain.Page[T], error) {
	query = normalizeListQuery(query)

	key, cacheable := s.pageKey(ctx, scope, query)
	if cacheable {
		var cached domain.Page[T]
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.WithError(err).WithField("scope", scope).Warn("listing cache read failed")
		}
		if hit {
			return cached, nil
		}
	}

	filter := store.Filter{Status: query.Status, SortBy: query.Sort, Desc: query.Desc}
	var page domain.Page[T]
	if query.Search == "" {
		filter.Skip = (query.Page - 1) * query.Limit
		filter.Limit = query.Limit
		rows, total, err := fetch(ctx, filter)
		if err != nil {
			return domain.Page[T]{}, err
		}
		page = domain.Page[T]{Items: rows, Total: total}
	} else {
		rows, _, err := fetch(ctx, filter)
		if err != nil {
			return domain.Page[T]{}, err
		}
		matched := make([]T, 0, len(rows))
		for _, row := range rows {
			if s.matcher.Match(query.Search, project(row)...) {
				matched = append(matched, row)
			}
		}
		window := store.Filter{Skip: (query.Page - 1) * query.Limit, Limit: query.Limit}
		start, end := window.Window(len(matched))
		page = domain.Page[T]{Items: matched[start:end], Total: len(matched)}
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	page.Page = query.Page
	page.Limit = query.Limit

	if cacheable {
		if err := s.cache.Set(ctx, key, page, s.listingCacheTTL); err != nil {
			s.log.WithError(err).WithField("scope", scope).Warn("listing cache write failed")
		}
	}
	return page, nil
}

func (s *Service) pageKey(ctx context.Context, scope string, query domain.ListQuery) (string, bool) {
	if s.listingCacheTTL <= 0 {
		return "", false
	}
	generation, err := s.cache.Generation(ctx, scope)
	if err != nil {
		s.log.WithError(err).WithField("scope", scope).Warn("listing cache generation unavailable")
		return "", false
	}
	return cache.Key(scope, generation, fmt.Sprintf("page=%d&limit=%d&sort=%s&desc=%t&status=%s&q=%s",
		query.Page, query.Limit, query.Sort, query.Desc, query.Status, query.Search)), true
}

func normalizeListQuery(query domain.ListQuery) domain.ListQuery {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit < 1 {
		query.Limit = defaultPageLimit
	}
	if query.Limit > maxPageLimit {
		query.Limit = maxPageLimit
	}
	return query
}
