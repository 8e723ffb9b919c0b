package reconcile

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/h0rv/boardsync/internal/board"
	"github.com/h0rv/boardsync/internal/config"
	"github.com/h0rv/boardsync/internal/domain"
	"github.com/h0rv/boardsync/internal/gh"
	"github.com/h0rv/boardsync/internal/pager"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fieldUpdate struct {
	ProjectID, ItemID, FieldID, OptionID string
}

type addition struct {
	ProjectID, ContentID string
}

// fakeAPI serves canned boards and repositories and records every mutation.
type fakeAPI struct {
	project      domain.Project
	resolveErr   error
	resolveCalls int

	items         []domain.BoardItem
	itemsRequests int

	issues     map[string][]domain.RepositoryIssue
	issuesErr  map[string]error
	issueSince []time.Time

	updateErr map[string]error
	updates   []fieldUpdate

	addErr    map[string]error
	additions []addition

	deleted []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		project: domain.Project{ID: "PVT_1", Number: 3, Title: "Platform", Owner: "acme"},
	}
}

// slicePage serves all as pages of size first, using the offset as cursor.
func slicePage[T any](all []T, after string, first int) pager.Page[T] {
	start := 0
	if after != "" {
		start, _ = strconv.Atoi(after)
	}
	end := start + first
	if end > len(all) {
		end = len(all)
	}
	return pager.Page[T]{
		Nodes:       all[start:end],
		HasNextPage: end < len(all),
		EndCursor:   strconv.Itoa(end),
	}
}

func (f *fakeAPI) ResolveProject(ctx context.Context, org string, number int) (domain.Project, error) {
	f.resolveCalls++
	if f.resolveErr != nil {
		return domain.Project{}, f.resolveErr
	}
	return f.project, nil
}

func (f *fakeAPI) ProjectItems(ctx context.Context, projectID string, after string, first int) (pager.Page[domain.BoardItem], error) {
	f.itemsRequests++
	return slicePage(f.items, after, first), nil
}

func (f *fakeAPI) RepositoryIssues(ctx context.Context, org, repo string, since time.Time, after string, first int) (pager.Page[domain.RepositoryIssue], error) {
	f.issueSince = append(f.issueSince, since)
	if err := f.issuesErr[repo]; err != nil {
		return pager.Page[domain.RepositoryIssue]{}, err
	}
	return slicePage(f.issues[repo], after, first), nil
}

func (f *fakeAPI) AddItem(ctx context.Context, projectID string, contentID string) (string, error) {
	if err := f.addErr[contentID]; err != nil {
		return "", err
	}
	f.additions = append(f.additions, addition{ProjectID: projectID, ContentID: contentID})
	return "PVTI_" + contentID, nil
}

func (f *fakeAPI) UpdateItemField(ctx context.Context, projectID string, itemID string, fieldID string, optionID string) error {
	if err := f.updateErr[itemID]; err != nil {
		return err
	}
	f.updates = append(f.updates, fieldUpdate{ProjectID: projectID, ItemID: itemID, FieldID: fieldID, OptionID: optionID})
	return nil
}

func (f *fakeAPI) DeleteItem(ctx context.Context, projectID string, itemID string) error {
	f.deleted = append(f.deleted, itemID)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Endpoint:        config.DefaultEndpoint,
		Token:           "ghp_test",
		Org:             "acme",
		ProjectNumber:   3,
		Repositories:    []string{"r1", "r2"},
		UpdateSinceDays: config.DefaultUpdateSinceDays,
		PageSize:        config.DefaultPageSize,
		HTTPTimeout:     config.DefaultHTTPTimeout,
		LogLevel:        config.DefaultLogLevel,
		LogFormat:       config.DefaultLogFormat,
	}
}

func statusField(doneName string) domain.FieldDef {
	return domain.FieldDef{
		ID:   "F_status",
		Name: "Status",
		Type: domain.FieldTypeSingleSelect,
		Options: []domain.Option{
			{ID: "opt_todo", Name: "Todo"},
			{ID: "opt_progress", Name: "In Progress"},
			{ID: "opt_done", Name: doneName},
		},
	}
}

func boardItem(id, optionID, contentState string) domain.BoardItem {
	item := domain.BoardItem{
		ID:      id,
		Title:   "item " + id,
		Content: &domain.Content{Type: domain.ContentTypeIssue, ID: "I_" + id, State: contentState},
	}
	if optionID != "" {
		field := statusField("Done")
		opt, _ := field.OptionByID(optionID)
		item.FieldValues = []domain.FieldValue{{Field: field, OptionID: optionID, Name: opt.Name}}
	}
	return item
}

func newTestReconciler(t *testing.T, cfg *config.Config, api API, opts ...Option) (*Reconciler, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	opts = append([]Option{WithLogger(logger)}, opts...)
	r, err := New(cfg, api, opts...)
	require.NoError(t, err)
	return r, &buf
}

func TestNew_InvalidConfig(t *testing.T) {
	api := newFakeAPI()
	cfg := testConfig()
	cfg.Org = ""

	r, err := New(cfg, api)

	assert.Nil(t, r)
	var verrs config.ValidationErrors
	assert.True(t, errors.As(err, &verrs))
	assert.Equal(t, 0, api.resolveCalls, "no network activity before configuration is valid")
}

func TestNew_NilArguments(t *testing.T) {
	_, err := New(nil, newFakeAPI())
	assert.Error(t, err)

	_, err = New(testConfig(), nil)
	assert.Error(t, err)
}

func TestProject_ResolvedOnce(t *testing.T) {
	api := newFakeAPI()
	r, _ := newTestReconciler(t, testConfig(), api)

	_, err := r.CloseCompletedItems(context.Background())
	require.NoError(t, err)
	_, err = r.SyncIssues(context.Background(), time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 1, api.resolveCalls)
}

func TestProject_ResolutionErrorAborts(t *testing.T) {
	api := newFakeAPI()
	api.resolveErr = gh.NewSchemaError("project acme/3", "project not found")
	r, _ := newTestReconciler(t, testConfig(), api)

	_, err := r.CloseCompletedItems(context.Background())

	assert.True(t, gh.IsType(err, gh.ErrorTypeSchema))
	assert.Equal(t, 0, api.itemsRequests)
}

func TestCloseCompletedItems_ClosedInProgressGetsDone(t *testing.T) {
	api := newFakeAPI()
	api.items = []domain.BoardItem{boardItem("1", "opt_progress", "CLOSED")}
	r, _ := newTestReconciler(t, testConfig(), api)

	res, err := r.CloseCompletedItems(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []fieldUpdate{{ProjectID: "PVT_1", ItemID: "1", FieldID: "F_status", OptionID: "opt_done"}}, api.updates)
	assert.Equal(t, Result{Examined: 1, Updated: 1}, res)
}

func TestCloseCompletedItems_NoMutation(t *testing.T) {
	tests := []struct {
		name string
		item domain.BoardItem
	}{
		{name: "already done and closed", item: boardItem("1", "opt_done", "CLOSED")},
		{name: "already done and open", item: boardItem("1", "opt_done", "OPEN")},
		{name: "open issue", item: boardItem("1", "opt_progress", "OPEN")},
		{name: "merged pull request", item: boardItem("1", "opt_progress", "MERGED")},
		{name: "no status value", item: boardItem("1", "", "CLOSED")},
		{
			name: "no content",
			item: func() domain.BoardItem {
				item := boardItem("1", "opt_progress", "CLOSED")
				item.Content = nil
				return item
			}(),
		},
		{
			name: "draft without state",
			item: func() domain.BoardItem {
				item := boardItem("1", "opt_todo", "")
				item.Content.Type = domain.ContentTypeDraftIssue
				return item
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			api.items = []domain.BoardItem{tt.item}
			r, _ := newTestReconciler(t, testConfig(), api)

			res, err := r.CloseCompletedItems(context.Background())

			require.NoError(t, err)
			assert.Empty(t, api.updates)
			assert.Equal(t, Result{Examined: 1, Skipped: 1}, res)
		})
	}
}

func TestCloseCompletedItems_DoneMatchIsCaseInsensitive(t *testing.T) {
	for _, name := range []string{"DONE", "done", "Done"} {
		t.Run(name, func(t *testing.T) {
			field := statusField(name)

			closedItem := boardItem("1", "opt_progress", "CLOSED")
			closedItem.FieldValues[0].Field = field

			doneItem := boardItem("2", "opt_done", "CLOSED")
			doneItem.FieldValues[0] = domain.FieldValue{Field: field, OptionID: "opt_done", Name: name}

			api := newFakeAPI()
			api.items = []domain.BoardItem{closedItem, doneItem}
			r, _ := newTestReconciler(t, testConfig(), api)

			res, err := r.CloseCompletedItems(context.Background())

			require.NoError(t, err)
			require.Len(t, api.updates, 1)
			assert.Equal(t, "1", api.updates[0].ItemID)
			assert.Equal(t, "opt_done", api.updates[0].OptionID)
			assert.Equal(t, 1, res.Skipped)
		})
	}
}

func TestCloseCompletedItems_MissingDoneOptionIsolated(t *testing.T) {
	noDone := boardItem("1", "opt_progress", "CLOSED")
	noDone.FieldValues[0].Field.Options = noDone.FieldValues[0].Field.Options[:2]

	api := newFakeAPI()
	api.items = []domain.BoardItem{noDone, boardItem("2", "opt_todo", "CLOSED")}
	r, logs := newTestReconciler(t, testConfig(), api)

	res, err := r.CloseCompletedItems(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Result{Examined: 2, Updated: 1, Failed: 1}, res)
	require.Len(t, api.updates, 1)
	assert.Equal(t, "2", api.updates[0].ItemID)
	assert.Contains(t, logs.String(), `"item_id":"1"`)
	assert.Contains(t, logs.String(), board.ErrOptionNotFound.Error())
}

func TestCloseCompletedItems_MutationFailureIsolated(t *testing.T) {
	api := newFakeAPI()
	api.items = []domain.BoardItem{
		boardItem("1", "opt_progress", "CLOSED"),
		boardItem("2", "opt_progress", "CLOSED"),
	}
	api.updateErr = map[string]error{"1": &gh.Error{Type: gh.ErrorTypeGraphQL, Message: "item is archived"}}
	r, _ := newTestReconciler(t, testConfig(), api)

	res, err := r.CloseCompletedItems(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Result{Examined: 2, Updated: 1, Failed: 1}, res)
	require.Len(t, api.updates, 1)
	assert.Equal(t, "2", api.updates[0].ItemID)
}

func TestCloseCompletedItems_FatalErrorAborts(t *testing.T) {
	api := newFakeAPI()
	api.items = []domain.BoardItem{
		boardItem("1", "opt_progress", "CLOSED"),
		boardItem("2", "opt_progress", "CLOSED"),
	}
	api.updateErr = map[string]error{"1": &gh.Error{Type: gh.ErrorTypeAuth, Message: "bad credentials"}}
	r, _ := newTestReconciler(t, testConfig(), api)

	res, err := r.CloseCompletedItems(context.Background())

	require.Error(t, err)
	assert.True(t, gh.IsType(err, gh.ErrorTypeAuth))
	assert.Empty(t, api.updates)
	assert.Equal(t, 1, res.Examined)
}

func TestCloseCompletedItems_InconsistentStatusIsolated(t *testing.T) {
	broken := boardItem("1", "opt_progress", "CLOSED")
	broken.FieldValues[0] = domain.FieldValue{Field: statusField("Done"), OptionID: "opt_deleted"}

	api := newFakeAPI()
	api.items = []domain.BoardItem{broken}
	r, _ := newTestReconciler(t, testConfig(), api)

	res, err := r.CloseCompletedItems(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, api.updates)
}

func TestCloseCompletedItems_Paginates(t *testing.T) {
	cfg := testConfig()
	cfg.PageSize = 2

	api := newFakeAPI()
	for i := 0; i < 5; i++ {
		api.items = append(api.items, boardItem(strconv.Itoa(i), "opt_progress", "CLOSED"))
	}
	r, _ := newTestReconciler(t, cfg, api)

	res, err := r.CloseCompletedItems(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, api.itemsRequests)
	assert.Equal(t, 5, res.Updated)
	ids := make([]string, 0, len(api.updates))
	for _, u := range api.updates {
		ids = append(ids, u.ItemID)
	}
	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, ids)
}

func TestCloseCompletedItems_DryRun(t *testing.T) {
	cfg := testConfig()
	cfg.DryRun = true

	api := newFakeAPI()
	api.items = []domain.BoardItem{boardItem("1", "opt_progress", "CLOSED")}
	r, logs := newTestReconciler(t, cfg, api)

	res, err := r.CloseCompletedItems(context.Background())

	require.NoError(t, err)
	assert.Empty(t, api.updates)
	assert.Equal(t, 1, res.Updated)
	assert.Contains(t, logs.String(), "dry run")
}

func TestSyncIssues_AddsEveryIssue(t *testing.T) {
	api := newFakeAPI()
	api.issues = map[string][]domain.RepositoryIssue{
		"r1": {{ID: "i1", Number: 1}, {ID: "i2", Number: 2}},
		"r2": {{ID: "i3", Number: 3}},
	}
	r, _ := newTestReconciler(t, testConfig(), api)

	res, err := r.SyncIssues(context.Background(), time.Time{})

	require.NoError(t, err)
	assert.Equal(t, []addition{
		{ProjectID: "PVT_1", ContentID: "i1"},
		{ProjectID: "PVT_1", ContentID: "i2"},
		{ProjectID: "PVT_1", ContentID: "i3"},
	}, api.additions)
	assert.Equal(t, Result{Examined: 3, Updated: 3}, res)
}

func TestSyncIssues_DefaultCutoff(t *testing.T) {
	now := time.Date(2026, 10, 19, 15, 30, 0, 0, time.FixedZone("PDT", -7*3600))
	api := newFakeAPI()
	r, _ := newTestReconciler(t, testConfig(), api, WithClock(func() time.Time { return now }))

	_, err := r.SyncIssues(context.Background(), time.Time{})

	require.NoError(t, err)
	require.Len(t, api.issueSince, 2)
	want := time.Date(2026, 10, 9, 0, 0, 0, 0, time.UTC)
	for _, since := range api.issueSince {
		assert.True(t, want.Equal(since), "got %v", since)
		assert.Equal(t, "2026-10-09T00:00:00Z", since.Format(gh.SinceLayout))
	}
}

func TestSyncIssues_CutoffOverride(t *testing.T) {
	api := newFakeAPI()
	r, _ := newTestReconciler(t, testConfig(), api)
	override := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := r.SyncIssues(context.Background(), override)

	require.NoError(t, err)
	for _, since := range api.issueSince {
		assert.True(t, override.Equal(since))
	}
}

func TestCutoff_Precedence(t *testing.T) {
	now := time.Date(2026, 10, 19, 1, 0, 0, 0, time.UTC)
	cfg := testConfig()
	cfg.UpdateSince = "2026-05-01"
	cfg.UpdateSinceDays = 3
	r, _ := newTestReconciler(t, cfg, newFakeAPI(), WithClock(func() time.Time { return now }))

	override := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, override, r.Cutoff(override))
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), r.Cutoff(time.Time{}))

	cfg.UpdateSince = ""
	assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), r.Cutoff(time.Time{}))
}

func TestDefaultCutoff(t *testing.T) {
	// Late evening west of UTC is already the next day in UTC
	now := time.Date(2026, 3, 1, 22, 0, 0, 0, time.FixedZone("EST", -5*3600))
	assert.Equal(t, time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC), DefaultCutoff(now, 10))
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), DefaultCutoff(now, 0))
}

func TestSyncIssues_RepositoryFailureIsolated(t *testing.T) {
	api := newFakeAPI()
	api.issues = map[string][]domain.RepositoryIssue{"r2": {{ID: "i3"}}}
	api.issuesErr = map[string]error{"r1": gh.NewSchemaError("repository acme/r1", "response has no repository issues")}
	r, _ := newTestReconciler(t, testConfig(), api)

	res, err := r.SyncIssues(context.Background(), time.Time{})

	require.NoError(t, err)
	assert.Equal(t, []addition{{ProjectID: "PVT_1", ContentID: "i3"}}, api.additions)
	assert.Equal(t, 1, res.Failed)
}

func TestSyncIssues_NetworkErrorAborts(t *testing.T) {
	api := newFakeAPI()
	api.issues = map[string][]domain.RepositoryIssue{"r2": {{ID: "i3"}}}
	api.issuesErr = map[string]error{"r1": &gh.Error{Type: gh.ErrorTypeNetwork, Message: "connection reset"}}
	r, _ := newTestReconciler(t, testConfig(), api)

	_, err := r.SyncIssues(context.Background(), time.Time{})

	assert.True(t, gh.IsType(err, gh.ErrorTypeNetwork))
	assert.Empty(t, api.additions)
}

func TestSyncIssues_AddFailureIsolated(t *testing.T) {
	api := newFakeAPI()
	api.issues = map[string][]domain.RepositoryIssue{
		"r1": {{ID: "i1"}, {ID: "i2"}},
	}
	api.addErr = map[string]error{"i1": &gh.Error{Type: gh.ErrorTypeGraphQL, Message: "content is a pull request in another org"}}
	r, _ := newTestReconciler(t, testConfig(), api)

	res, err := r.SyncIssues(context.Background(), time.Time{})

	require.NoError(t, err)
	assert.Equal(t, Result{Examined: 2, Updated: 1, Failed: 1}, res)
}

func TestSyncIssues_DryRun(t *testing.T) {
	cfg := testConfig()
	cfg.DryRun = true
	api := newFakeAPI()
	api.issues = map[string][]domain.RepositoryIssue{"r1": {{ID: "i1"}}}
	r, _ := newTestReconciler(t, cfg, api)

	res, err := r.SyncIssues(context.Background(), time.Time{})

	require.NoError(t, err)
	assert.Empty(t, api.additions)
	assert.Equal(t, 1, res.Updated)
}

func TestRun_ClosesThenSyncs(t *testing.T) {
	api := newFakeAPI()
	api.items = []domain.BoardItem{boardItem("1", "opt_progress", "CLOSED")}
	api.issues = map[string][]domain.RepositoryIssue{"r1": {{ID: "i1"}}}
	r, logs := newTestReconciler(t, testConfig(), api)

	err := r.Run(context.Background())

	require.NoError(t, err)
	assert.Len(t, api.updates, 1)
	assert.Len(t, api.additions, 1)
	out := logs.String()
	assert.Less(t, bytes.Index([]byte(out), []byte("close completed items finished")),
		bytes.Index([]byte(out), []byte("sync issues finished")))
}

func TestRun_StopsOnFatalClose(t *testing.T) {
	api := newFakeAPI()
	api.items = []domain.BoardItem{boardItem("1", "opt_progress", "CLOSED")}
	api.updateErr = map[string]error{"1": &gh.Error{Type: gh.ErrorTypeAuth}}
	api.issues = map[string][]domain.RepositoryIssue{"r1": {{ID: "i1"}}}
	r, _ := newTestReconciler(t, testConfig(), api)

	err := r.Run(context.Background())

	assert.Error(t, err)
	assert.Empty(t, api.additions)
}

func TestRemoveItem(t *testing.T) {
	api := newFakeAPI()
	api.items = []domain.BoardItem{boardItem("1", "opt_todo", "OPEN")}
	r, _ := newTestReconciler(t, testConfig(), api)

	require.NoError(t, r.RemoveItem(context.Background(), "1"))
	assert.Equal(t, []string{"1"}, api.deleted)

	err := r.RemoveItem(context.Background(), "missing")
	assert.ErrorIs(t, err, board.ErrItemNotFound)
	assert.Len(t, api.deleted, 1)
}
