package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) query(ctx context.Context, f Filter) *gorm.DB {
	q := s.db.WithContext(ctx)
	for _, c := range f {
		q = q.Where(c.Query, c.Args...)
	}
	return q
}

func applyOptions(q *gorm.DB, ro ReadOptions) *gorm.DB {
	for _, p := range ro.Preloads {
		q = q.Preload(p)
	}
	if ro.Order != "" {
		q = q.Order(ro.Order)
	}
	if ro.Limit > 0 {
		q = q.Limit(ro.Limit)
	}
	return q
}

func (s *GormStore) Read(ctx context.Context, dest any, f Filter, opts ...ReadOption) error {
	if err := applyOptions(s.query(ctx, f), collect(opts)).Find(dest).Error; err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return nil
}

func (s *GormStore) ReadOne(ctx context.Context, dest any, f Filter, opts ...ReadOption) error {
	err := applyOptions(s.query(ctx, f), collect(opts)).Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read one: %w", err)
	}
	return nil
}

// Insert never cascades into associations; services write child rows explicitly.
func (s *GormStore) Insert(ctx context.Context, row any) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(row).Error; err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

func (s *GormStore) Update(ctx context.Context, model any, f Filter, patch map[string]any) (int64, error) {
	if len(f) == 0 {
		return 0, ErrUnscopedWrite
	}
	res := s.query(ctx, f).Model(model).Updates(patch)
	if res.Error != nil {
		return 0, fmt.Errorf("update: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) Delete(ctx context.Context, model any, f Filter) (int64, error) {
	if len(f) == 0 {
		return 0, ErrUnscopedWrite
	}
	res := s.query(ctx, f).Delete(model)
	if res.Error != nil {
		return 0, fmt.Errorf("delete: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) InTx(ctx context.Context, fn func(tx RecordStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// Increment is a patch value that bumps an integer column in place.
func Increment(column string) any {
	return gorm.Expr(column + " + 1")
}
