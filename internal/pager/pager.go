// Package pager aggregates cursor-paginated GraphQL connections into a single slice.
package pager

import (
	"context"
	"fmt"
)

// DefaultPageSize is the largest page GitHub accepts for connection queries.
const DefaultPageSize = 100

// Page is one page of a connection as returned by the API.
type Page[T any] struct {
	Nodes       []T
	HasNextPage bool
	EndCursor   string
}

// FetchFunc fetches the page that starts after the given cursor.
// An empty cursor requests the first page.
type FetchFunc[T any] func(ctx context.Context, after string, first int) (Page[T], error)

// All follows the connection from the first page until the end of results and
// returns every node in API order.
//
// The loop ends when the API reports no next page, when a page comes back
// shorter than pageSize, or when the cursor does not advance. The last two
// keep a misbehaving hasNextPage flag from looping forever.
func All[T any](ctx context.Context, pageSize int, fetch FetchFunc[T]) ([]T, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	nodes := make([]T, 0)
	after := ""
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p, err := fetch(ctx, after, pageSize)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		nodes = append(nodes, p.Nodes...)

		if !p.HasNextPage || len(p.Nodes) < pageSize {
			break
		}
		if p.EndCursor == "" || p.EndCursor == after {
			break
		}
		after = p.EndCursor
	}

	return nodes, nil
}
