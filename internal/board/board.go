// Package board holds the in-memory view of a project's items for a single
// reconciliation pass. It indexes items, groups them into status columns and
// resolves Status values and options by name.
package board

import (
	"errors"
	"fmt"

	"github.com/h0rv/boardsync/internal/domain"
)

var (
	// ErrItemNotFound indicates the requested item is not on the board.
	ErrItemNotFound = errors.New("item not found")
	// ErrNoStatus indicates the item has no Status field value.
	ErrNoStatus = errors.New("item has no status")
	// ErrOptionNotFound indicates a single-select field lacks the requested option.
	ErrOptionNotFound = errors.New("option not found")
)

// NoStatusKey is the special column key for items without a Status value.
const NoStatusKey = "_no_status_"

// Status is an item's resolved Status field value.
type Status struct {
	Field  domain.FieldDef
	Option domain.Option
}

// Snapshot is an immutable view of the board's items, in API order.
type Snapshot struct {
	items []*domain.BoardItem
	byID  map[string]*domain.BoardItem

	// Column mapping: status option name -> []ItemID
	// Special key NoStatusKey holds items without a Status value
	columns map[string][]string
}

// New builds a snapshot from aggregated items.
func New(items []domain.BoardItem) *Snapshot {
	s := &Snapshot{
		items:   make([]*domain.BoardItem, 0, len(items)),
		byID:    make(map[string]*domain.BoardItem, len(items)),
		columns: make(map[string][]string),
	}
	for i := range items {
		item := &items[i]
		s.items = append(s.items, item)
		s.byID[item.ID] = item
	}
	s.buildColumns()
	return s
}

// Items returns all items in the order the API returned them.
func (s *Snapshot) Items() []*domain.BoardItem {
	return s.items
}

// Len returns the number of items on the board.
func (s *Snapshot) Len() int {
	return len(s.items)
}

// GetItem retrieves an item by ID, returning ErrItemNotFound if not found.
func (s *Snapshot) GetItem(itemID string) (*domain.BoardItem, error) {
	item, ok := s.byID[itemID]
	if !ok {
		return nil, ErrItemNotFound
	}
	return item, nil
}

// ColumnItemIDs returns the item IDs in a status column (option name or NoStatusKey).
func (s *Snapshot) ColumnItemIDs(name string) []string {
	ids := s.columns[name]
	// Return a copy
	result := make([]string, len(ids))
	copy(result, ids)
	return result
}

// ColumnCounts returns the number of items per status column.
func (s *Snapshot) ColumnCounts() map[string]int {
	counts := make(map[string]int, len(s.columns))
	for name, ids := range s.columns {
		counts[name] = len(ids)
	}
	return counts
}

// buildColumns groups items by their Status option name. Items whose Status
// cannot be resolved land in NoStatusKey.
func (s *Snapshot) buildColumns() {
	for _, item := range s.items {
		key := NoStatusKey
		if status, err := StatusOf(item); err == nil {
			key = status.Option.Name
		}
		s.columns[key] = append(s.columns[key], item.ID)
	}
}

// StatusOf resolves the item's Status field value and the option it points to.
// Returns ErrNoStatus when the item has no Status value, and ErrOptionNotFound
// when the selected option is missing from the field's option set.
func StatusOf(item *domain.BoardItem) (Status, error) {
	fv, ok := item.FieldValueByName(domain.StatusFieldName)
	if !ok || (fv.OptionID == "" && fv.Name == "") {
		return Status{}, ErrNoStatus
	}

	status := Status{Field: fv.Field}
	if opt, ok := fv.Field.OptionByID(fv.OptionID); ok {
		status.Option = opt
		return status, nil
	}
	if fv.Name != "" {
		status.Option = domain.Option{ID: fv.OptionID, Name: fv.Name}
		return status, nil
	}
	return Status{}, fmt.Errorf("%w: %s on field %s", ErrOptionNotFound, fv.OptionID, fv.Field.Name)
}

// ResolveOption finds the option named name (case-insensitive) on field.
func ResolveOption(field domain.FieldDef, name string) (domain.Option, error) {
	if opt, ok := field.OptionByName(name); ok {
		return opt, nil
	}
	return domain.Option{}, fmt.Errorf("%w: field %q has no %q option", ErrOptionNotFound, field.Name, name)
}
