// Package domain defines the normalized domain types for GitHub Projects v2.
// These types represent the core concepts independent of the GitHub GraphQL API structure.
package domain

import (
	"strings"
	"time"
)

// Project represents a GitHub Project v2 instance.
type Project struct {
	ID     string // GitHub Project node ID
	Number int    // Project number within the owner's namespace
	Title  string // Project title
	Owner  string // Owner login (organization)
}

// FieldDef represents a project field definition with its metadata.
type FieldDef struct {
	ID      string   // GitHub field node ID
	Name    string   // Field name (e.g., "Status")
	Type    string   // Field type (e.g., "SINGLE_SELECT", "TEXT", etc.)
	Options []Option // Available options for SINGLE_SELECT fields
}

// OptionByName returns the option whose name matches name, ignoring case.
func (f FieldDef) OptionByName(name string) (Option, bool) {
	for _, opt := range f.Options {
		if strings.EqualFold(opt.Name, name) {
			return opt, true
		}
	}
	return Option{}, false
}

// OptionByID returns the option with the given node ID.
func (f FieldDef) OptionByID(id string) (Option, bool) {
	for _, opt := range f.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// Option represents a single option value for a SINGLE_SELECT field.
type Option struct {
	ID   string // GitHub option node ID
	Name string // Option name displayed to users (e.g., "In Progress", "Done")
}

// FieldValue is the value assigned to one field of a board item.
type FieldValue struct {
	Field    FieldDef
	OptionID string // Selected option, SINGLE_SELECT fields only
	Name     string // Selected option name, SINGLE_SELECT fields only
	Text     string // Rendered value for every other field type
}

// Content is the issue or pull request linked to a board item.
type Content struct {
	Type   string // "Issue", "PullRequest" or "DraftIssue"
	ID     string
	Number int
	Title  string
	State  string // OPEN, CLOSED, MERGED; empty for drafts
	Repo   string // nameWithOwner
}

// IsClosed reports whether the content's lifecycle state is closed.
func (c *Content) IsClosed() bool {
	return c != nil && strings.EqualFold(c.State, StateClosed)
}

// BoardItem represents a project item with its field assignments.
type BoardItem struct {
	ID          string
	Archived    bool
	UpdatedAt   time.Time
	Title       string
	Type        string // ISSUE, PULL_REQUEST, DRAFT_ISSUE, REDACTED
	FieldValues []FieldValue
	Content     *Content // nil for redacted items
}

// FieldValueByName looks up the item's value for the field with the given name.
func (i BoardItem) FieldValueByName(name string) (FieldValue, bool) {
	for _, fv := range i.FieldValues {
		if fv.Field.Name == name {
			return fv, true
		}
	}
	return FieldValue{}, false
}

// RepositoryIssue is an issue listed from a repository.
type RepositoryIssue struct {
	ID        string
	Title     string
	Number    int
	CreatedAt time.Time
	State     string
	Repo      string
}

// FieldType constants for commonly used field types.
const (
	FieldTypeSingleSelect = "SINGLE_SELECT"
	FieldTypeText         = "TEXT"
	FieldTypeNumber       = "NUMBER"
	FieldTypeDate         = "DATE"
	FieldTypeIteration    = "ITERATION"
)

// ContentType constants for linked content.
const (
	ContentTypeIssue       = "Issue"
	ContentTypePullRequest = "PullRequest"
	ContentTypeDraftIssue  = "DraftIssue"
)

// Lifecycle states shared by issues and pull requests.
const (
	StateOpen   = "OPEN"
	StateClosed = "CLOSED"
	StateMerged = "MERGED"
)

// Well-known board names.
const (
	StatusFieldName = "Status"
	DoneOptionName  = "Done"
)
