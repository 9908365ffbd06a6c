package schema

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when an entity or column has no descriptor.
var ErrNotFound = errors.New("schema: not found")

// Oracle supplies column and entity metadata by name.
// The pipeline depends on this interface only; implementations include the
// CUE-file backed Set in this package and test fixtures.
type Oracle interface {
	// Entity returns the descriptor for a record type.
	// Returns an error wrapping ErrNotFound for unknown types.
	Entity(ctx context.Context, entity string) (*EntityDescriptor, error)

	// Column returns the descriptor for one column of a record type.
	// Returns an error wrapping ErrNotFound when either the entity or the
	// column is unknown.
	Column(ctx context.Context, entity, column string) (*ColumnDescriptor, error)
}

// Set is an in-memory descriptor collection implementing Oracle.
type Set struct {
	entities map[string]*EntityDescriptor
	order    []string
}

// NewSet creates an empty descriptor set.
func NewSet() *Set {
	return &Set{entities: make(map[string]*EntityDescriptor)}
}

// Add registers an entity descriptor. Column descriptors must be added via
// AddColumn before the set is used; Add keeps the declared entity order.
func (s *Set) Add(e *EntityDescriptor) {
	if e.columns == nil {
		e.columns = make(map[string]*ColumnDescriptor)
	}
	if _, ok := s.entities[e.Name]; !ok {
		s.order = append(s.order, e.Name)
	}
	s.entities[e.Name] = e
}

// AddColumn registers a column on a previously added entity.
func (s *Set) AddColumn(entity string, c *ColumnDescriptor) error {
	e, ok := s.entities[entity]
	if !ok {
		return fmt.Errorf("add column %s.%s: %w", entity, c.LogicalName, ErrNotFound)
	}
	c.Entity = entity
	if _, exists := e.columns[c.LogicalName]; !exists {
		e.order = append(e.order, c.LogicalName)
	}
	e.columns[c.LogicalName] = c
	return nil
}

// Entities returns entity names in declared order.
func (s *Set) Entities() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Entity implements Oracle.
func (s *Set) Entity(_ context.Context, entity string) (*EntityDescriptor, error) {
	e, ok := s.entities[entity]
	if !ok {
		return nil, fmt.Errorf("entity %q: %w", entity, ErrNotFound)
	}
	return e, nil
}

// Column implements Oracle.
func (s *Set) Column(ctx context.Context, entity, column string) (*ColumnDescriptor, error) {
	e, err := s.Entity(ctx, entity)
	if err != nil {
		return nil, err
	}
	c, ok := e.Column(column)
	if !ok {
		return nil, fmt.Errorf("column %s.%s: %w", entity, column, ErrNotFound)
	}
	return c, nil
}
