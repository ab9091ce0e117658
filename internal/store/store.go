// Package store is the record store the reconciliation services talk to:
// filtered reads, inserts, conditional updates and deletes over gorm models.
package store

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrUnscopedWrite guards against update/delete without any condition.
	ErrUnscopedWrite = errors.New("update or delete without a filter")
)

// Condition is one SQL predicate with its bound arguments.
type Condition struct {
	Query string
	Args  []any
}

// Filter is a conjunction of conditions.
type Filter []Condition

func Eq(column string, value any) Condition {
	return Condition{Query: column + " = ?", Args: []any{value}}
}

func In(column string, values any) Condition {
	return Condition{Query: column + " IN ?", Args: []any{values}}
}

func IsNull(column string) Condition {
	return Condition{Query: column + " IS NULL"}
}

func NotNull(column string) Condition {
	return Condition{Query: column + " IS NOT NULL"}
}

func Gte(column string, value any) Condition {
	return Condition{Query: column + " >= ?", Args: []any{value}}
}

func Lte(column string, value any) Condition {
	return Condition{Query: column + " <= ?", Args: []any{value}}
}

func Where(query string, args ...any) Condition {
	return Condition{Query: query, Args: args}
}

// Or joins conditions into a single disjunction.
func Or(conds ...Condition) Condition {
	parts := make([]string, 0, len(conds))
	var args []any
	for _, c := range conds {
		parts = append(parts, "("+c.Query+")")
		args = append(args, c.Args...)
	}
	return Condition{Query: "(" + strings.Join(parts, " OR ") + ")", Args: args}
}

// And returns a new filter with extra conditions appended.
func (f Filter) And(conds ...Condition) Filter {
	out := make(Filter, 0, len(f)+len(conds))
	out = append(out, f...)
	return append(out, conds...)
}

type ReadOptions struct {
	Order    string
	Limit    int
	Preloads []string
}

type ReadOption func(*ReadOptions)

func OrderBy(order string) ReadOption {
	return func(o *ReadOptions) { o.Order = order }
}

func Limit(n int) ReadOption {
	return func(o *ReadOptions) { o.Limit = n }
}

func Preload(association string) ReadOption {
	return func(o *ReadOptions) { o.Preloads = append(o.Preloads, association) }
}

func collect(opts []ReadOption) ReadOptions {
	var ro ReadOptions
	for _, opt := range opts {
		opt(&ro)
	}
	return ro
}

// RecordStore is the storage contract of the reconciliation core.
// dest/model/row are pointers to gorm models (or slices of them for Read).
type RecordStore interface {
	Read(ctx context.Context, dest any, f Filter, opts ...ReadOption) error
	// ReadOne returns ErrNotFound when no row matches.
	ReadOne(ctx context.Context, dest any, f Filter, opts ...ReadOption) error
	Insert(ctx context.Context, row any) error
	// Update applies patch (column -> value) to every matching row and
	// reports how many rows changed; 0 means the filter did not match.
	Update(ctx context.Context, model any, f Filter, patch map[string]any) (int64, error)
	Delete(ctx context.Context, model any, f Filter) (int64, error)
	// InTx runs fn against a store bound to a single transaction.
	InTx(ctx context.Context, fn func(tx RecordStore) error) error
}
