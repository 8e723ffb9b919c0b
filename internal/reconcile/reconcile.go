// Package reconcile keeps a GitHub project board in line with its repositories.
// It moves items whose issue or pull request is closed to the Done column and
// adds recently updated repository issues to the board.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/h0rv/boardsync/internal/board"
	"github.com/h0rv/boardsync/internal/config"
	"github.com/h0rv/boardsync/internal/domain"
	"github.com/h0rv/boardsync/internal/gh"
	"github.com/h0rv/boardsync/internal/pager"
	"github.com/sirupsen/logrus"
)

// API is the subset of the GitHub client the reconciler needs.
// *gh.Client implements it.
type API interface {
	ResolveProject(ctx context.Context, org string, number int) (domain.Project, error)
	ProjectItems(ctx context.Context, projectID string, after string, first int) (pager.Page[domain.BoardItem], error)
	RepositoryIssues(ctx context.Context, org, repo string, since time.Time, after string, first int) (pager.Page[domain.RepositoryIssue], error)
	AddItem(ctx context.Context, projectID string, contentID string) (string, error)
	UpdateItemField(ctx context.Context, projectID string, itemID string, fieldID string, optionID string) error
	DeleteItem(ctx context.Context, projectID string, itemID string) error
}

var _ API = (*gh.Client)(nil)

// Result summarizes one procedure run.
type Result struct {
	Examined int
	Updated  int
	Skipped  int
	Failed   int
}

func (r Result) fields() logrus.Fields {
	return logrus.Fields{
		"examined": r.Examined,
		"updated":  r.Updated,
		"skipped":  r.Skipped,
		"failed":   r.Failed,
	}
}

// Reconciler runs the board maintenance procedures against one project.
type Reconciler struct {
	cfg *config.Config
	api API
	log logrus.FieldLogger
	now func() time.Time

	project *domain.Project
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Reconciler) { r.log = logger }
}

// WithClock replaces time.Now, for computing the default cutoff.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New validates cfg and returns a Reconciler that talks to api.
func New(cfg *config.Config, api API, opts ...Option) (*Reconciler, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if api == nil {
		return nil, errors.New("API client is required")
	}

	discard := logrus.New()
	discard.SetOutput(io.Discard)

	r := &Reconciler{
		cfg: cfg,
		api: api,
		log: discard,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Project resolves the configured project's node ID. The lookup happens once
// per Reconciler; later calls return the cached project.
func (r *Reconciler) Project(ctx context.Context) (domain.Project, error) {
	if r.project != nil {
		return *r.project, nil
	}

	project, err := r.api.ResolveProject(ctx, r.cfg.Org, r.cfg.ProjectNumber)
	if err != nil {
		return domain.Project{}, err
	}
	r.project = &project

	r.log.WithFields(logrus.Fields{
		"project_id":    project.ID,
		"project_title": project.Title,
	}).Info("resolved project")
	return project, nil
}

// Board fetches every item of the project into a snapshot.
func (r *Reconciler) Board(ctx context.Context) (*board.Snapshot, error) {
	project, err := r.Project(ctx)
	if err != nil {
		return nil, err
	}

	items, err := pager.All(ctx, r.cfg.PageSize, func(ctx context.Context, after string, first int) (pager.Page[domain.BoardItem], error) {
		return r.api.ProjectItems(ctx, project.ID, after, first)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list project items: %w", err)
	}
	return board.New(items), nil
}

// Run executes CloseCompletedItems followed by SyncIssues with the configured cutoff.
func (r *Reconciler) Run(ctx context.Context) error {
	if _, err := r.CloseCompletedItems(ctx); err != nil {
		return err
	}
	_, err := r.SyncIssues(ctx, time.Time{})
	return err
}

// CloseCompletedItems sets Status to Done on every item whose linked content
// is closed. Failures on a single item are logged and counted; only fatal
// errors (credentials, transport) abort the pass.
func (r *Reconciler) CloseCompletedItems(ctx context.Context) (Result, error) {
	var res Result

	snap, err := r.Board(ctx)
	if err != nil {
		return res, err
	}
	project, _ := r.Project(ctx)

	r.log.WithFields(logrus.Fields{
		"items":   snap.Len(),
		"columns": snap.ColumnCounts(),
	}).Info("loaded board")

	for _, item := range snap.Items() {
		res.Examined++

		updated, err := r.closeItem(ctx, project, item)
		switch {
		case err != nil && gh.IsFatal(err):
			return res, fmt.Errorf("item %s: %w", item.ID, err)
		case err != nil:
			res.Failed++
			r.log.WithError(err).WithFields(itemFields(item)).Error("failed to mark item done")
		case updated:
			res.Updated++
		default:
			res.Skipped++
		}
	}

	r.log.WithFields(res.fields()).Info("close completed items finished")
	return res, nil
}

// closeItem reports whether the item needed and got the Done status.
func (r *Reconciler) closeItem(ctx context.Context, project domain.Project, item *domain.BoardItem) (bool, error) {
	status, err := board.StatusOf(item)
	if errors.Is(err, board.ErrNoStatus) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !item.Content.IsClosed() {
		return false, nil
	}
	if strings.EqualFold(status.Option.Name, domain.DoneOptionName) {
		return false, nil
	}

	done, err := board.ResolveOption(status.Field, domain.DoneOptionName)
	if err != nil {
		return false, err
	}

	log := r.log.WithFields(itemFields(item)).WithField("from", status.Option.Name)
	if r.cfg.DryRun {
		log.Info("dry run: would mark item done")
		return true, nil
	}

	if err := r.api.UpdateItemField(ctx, project.ID, item.ID, status.Field.ID, done.ID); err != nil {
		return false, err
	}
	log.Info("marked item done")
	return true, nil
}

// Cutoff returns the "updated since" timestamp for SyncIssues. A non-zero
// override wins, then the configured update_since, then today minus
// update_since_days at midnight UTC.
func (r *Reconciler) Cutoff(override time.Time) time.Time {
	if !override.IsZero() {
		return override.UTC()
	}
	if since, ok := r.cfg.Since(); ok {
		return since
	}
	return DefaultCutoff(r.now(), r.cfg.UpdateSinceDays)
}

// DefaultCutoff is midnight UTC of the day that lies days before now.
func DefaultCutoff(now time.Time, days int) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)
}

// SyncIssues adds every issue updated since the cutoff in each configured
// repository to the project. The add mutation is idempotent, so membership is
// not checked first. A zero since uses Cutoff's defaults.
func (r *Reconciler) SyncIssues(ctx context.Context, since time.Time) (Result, error) {
	var res Result

	project, err := r.Project(ctx)
	if err != nil {
		return res, err
	}
	cutoff := r.Cutoff(since)

	for _, repo := range r.cfg.Repositories {
		log := r.log.WithFields(logrus.Fields{
			"repository": r.cfg.Org + "/" + repo,
			"since":      cutoff.Format(gh.SinceLayout),
		})
		log.Info("scanning repository for issues")

		issues, err := pager.All(ctx, r.cfg.PageSize, func(ctx context.Context, after string, first int) (pager.Page[domain.RepositoryIssue], error) {
			return r.api.RepositoryIssues(ctx, r.cfg.Org, repo, cutoff, after, first)
		})
		if err != nil {
			if gh.IsFatal(err) {
				return res, fmt.Errorf("repository %s: %w", repo, err)
			}
			res.Failed++
			log.WithError(err).Error("failed to list repository issues")
			continue
		}

		for _, issue := range issues {
			res.Examined++
			if err := r.addIssue(ctx, project, issue); err != nil {
				if gh.IsFatal(err) {
					return res, fmt.Errorf("issue %s#%d: %w", repo, issue.Number, err)
				}
				res.Failed++
				log.WithError(err).WithField("issue", issue.Number).Error("failed to add issue to project")
				continue
			}
			res.Updated++
		}
	}

	r.log.WithFields(res.fields()).Info("sync issues finished")
	return res, nil
}

func (r *Reconciler) addIssue(ctx context.Context, project domain.Project, issue domain.RepositoryIssue) error {
	log := r.log.WithFields(logrus.Fields{
		"issue":      issue.Number,
		"content_id": issue.ID,
		"repository": issue.Repo,
	})
	if r.cfg.DryRun {
		log.Info("dry run: would add issue to project")
		return nil
	}

	itemID, err := r.api.AddItem(ctx, project.ID, issue.ID)
	if err != nil {
		return err
	}
	log.WithField("item_id", itemID).Debug("added issue to project")
	return nil
}

// RemoveItem deletes an item from the project after checking it is on the board.
func (r *Reconciler) RemoveItem(ctx context.Context, itemID string) error {
	snap, err := r.Board(ctx)
	if err != nil {
		return err
	}
	item, err := snap.GetItem(itemID)
	if err != nil {
		return fmt.Errorf("item %s: %w", itemID, err)
	}
	project, _ := r.Project(ctx)

	log := r.log.WithFields(itemFields(item))
	if r.cfg.DryRun {
		log.Info("dry run: would remove item from project")
		return nil
	}
	if err := r.api.DeleteItem(ctx, project.ID, item.ID); err != nil {
		return err
	}
	log.Info("removed item from project")
	return nil
}

func itemFields(item *domain.BoardItem) logrus.Fields {
	fields := logrus.Fields{
		"item_id": item.ID,
		"title":   item.Title,
	}
	if item.Content != nil {
		fields["content_id"] = item.Content.ID
		fields["content_state"] = item.Content.State
	}
	return fields
}
