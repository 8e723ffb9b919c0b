package pager

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted serves pre-built pages and records the cursor of every request.
type scripted struct {
	pages   []Page[int]
	cursors []string
}

func (s *scripted) fetch(ctx context.Context, after string, first int) (Page[int], error) {
	s.cursors = append(s.cursors, after)
	idx := len(s.cursors) - 1
	if idx >= len(s.pages) {
		return Page[int]{}, fmt.Errorf("unexpected request %d", idx+1)
	}
	return s.pages[idx], nil
}

func seq(from, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = from + i
	}
	return out
}

func TestAll_SinglePageWhenNoNextPage(t *testing.T) {
	s := &scripted{pages: []Page[int]{
		{Nodes: seq(0, 3), HasNextPage: false, EndCursor: "c1"},
	}}

	got, err := All(context.Background(), 3, s.fetch)

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Len(t, s.cursors, 1, "end-of-results on the first page means exactly one request")
}

func TestAll_FollowsCursor(t *testing.T) {
	s := &scripted{pages: []Page[int]{
		{Nodes: seq(0, 2), HasNextPage: true, EndCursor: "c1"},
		{Nodes: seq(2, 2), HasNextPage: true, EndCursor: "c2"},
		{Nodes: seq(4, 1), HasNextPage: false, EndCursor: "c3"},
	}}

	got, err := All(context.Background(), 2, s.fetch)

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	assert.Equal(t, []string{"", "c1", "c2"}, s.cursors)
}

func TestAll_ShortPageStopsDespiteHasNextPage(t *testing.T) {
	s := &scripted{pages: []Page[int]{
		{Nodes: seq(0, 2), HasNextPage: true, EndCursor: "c1"},
		{Nodes: seq(2, 1), HasNextPage: true, EndCursor: "c2"},
	}}

	got, err := All(context.Background(), 2, s.fetch)

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Len(t, s.cursors, 2)
}

func TestAll_StuckCursorStops(t *testing.T) {
	s := &scripted{pages: []Page[int]{
		{Nodes: seq(0, 2), HasNextPage: true, EndCursor: "c1"},
		{Nodes: seq(2, 2), HasNextPage: true, EndCursor: "c1"},
	}}

	got, err := All(context.Background(), 2, s.fetch)

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, got)
	assert.Len(t, s.cursors, 2)
}

func TestAll_EmptyCursorStops(t *testing.T) {
	s := &scripted{pages: []Page[int]{
		{Nodes: seq(0, 2), HasNextPage: true, EndCursor: ""},
	}}

	got, err := All(context.Background(), 2, s.fetch)

	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Len(t, s.cursors, 1)
}

func TestAll_EmptyFirstPage(t *testing.T) {
	s := &scripted{pages: []Page[int]{{}}}

	got, err := All(context.Background(), 100, s.fetch)

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAll_DefaultPageSize(t *testing.T) {
	var sizes []int
	fetch := func(ctx context.Context, after string, first int) (Page[int], error) {
		sizes = append(sizes, first)
		return Page[int]{}, nil
	}

	_, err := All(context.Background(), 0, fetch)

	require.NoError(t, err)
	assert.Equal(t, []int{DefaultPageSize}, sizes)
}

func TestAll_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	fetch := func(ctx context.Context, after string, first int) (Page[int], error) {
		calls++
		if calls == 2 {
			return Page[int]{}, boom
		}
		return Page[int]{Nodes: seq(0, 1), HasNextPage: true, EndCursor: "c1"}, nil
	}

	got, err := All(context.Background(), 1, fetch)

	assert.Nil(t, got)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "page 2")
}

func TestAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := All(ctx, 10, func(ctx context.Context, after string, first int) (Page[int], error) {
		t.Fatal("fetch must not be called on a cancelled context")
		return Page[int]{}, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}
