// Package store is the persistence contract of the lifecycle engine. The
// backing database is the single source of truth: each transition is one
// atomic read-modify-write under a row lock, and every call goes through
// the retry policy.
package store

import (
	"context"
	"errors"

	"github.com/fieldops/request-service/internal/errs"
	"github.com/fieldops/request-service/internal/model"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Requests is the request store consumed by the engine and query service.
type Requests interface {
	Create(ctx context.Context, r *model.Request) error
	Get(ctx context.Context, id uint64) (*model.Request, error)
	List(ctx context.Context) ([]model.Request, error)
	// Transition loads the request under a row lock, applies mutate and
	// persists the result in one transaction. Errors returned by mutate
	// abort the transaction and propagate without retry.
	Transition(ctx context.Context, id uint64, mutate func(*model.Request) error) (*model.Request, error)
	// Delete removes the request if guard accepts its current state.
	Delete(ctx context.Context, id uint64, guard func(*model.Request) error) error
}

// Refs resolves the reference entities a transition validates against.
type Refs interface {
	SiteByID(ctx context.Context, id uint64) (*model.Site, error)
	SystemByID(ctx context.Context, id uint64) (*model.System, error)
	SystemTypeByID(ctx context.Context, id uint64) (*model.SystemType, error)
	UserByID(ctx context.Context, id uint64) (*model.User, error)
	RequestTypeByID(ctx context.Context, id uint64) (*model.RequestType, error)
	DefaultRequestType(ctx context.Context) (*model.RequestType, error)
}

type DB struct {
	db    *gorm.DB
	retry Policy
}

func New(db *gorm.DB) *DB {
	return &DB{db: db, retry: DefaultPolicy()}
}

func preloaded(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Type").
		Preload("Site").
		Preload("Site.Client").
		Preload("System").
		Preload("System.SystemType").
		Preload("Technician")
}

func (s *DB) Create(ctx context.Context, r *model.Request) error {
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Omit(clause.Associations).Create(r).Error
	})
	if err != nil {
		return mapErr(err)
	}
	full, err := s.Get(ctx, r.ID)
	if err != nil {
		return err
	}
	*r = *full
	return nil
}

func (s *DB) Get(ctx context.Context, id uint64) (*model.Request, error) {
	var r model.Request
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return preloaded(s.db.WithContext(ctx)).First(&r, id).Error
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (s *DB) List(ctx context.Context) ([]model.Request, error) {
	var items []model.Request
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return preloaded(s.db.WithContext(ctx)).Find(&items).Error
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return items, nil
}

func (s *DB) Transition(ctx context.Context, id uint64, mutate func(*model.Request) error) (*model.Request, error) {
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var r model.Request
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&r, id).Error; err != nil {
				return err
			}
			if err := mutate(&r); err != nil {
				return err
			}
			return tx.Omit(clause.Associations).Save(&r).Error
		})
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return s.Get(ctx, id)
}

func (s *DB) Delete(ctx context.Context, id uint64, guard func(*model.Request) error) error {
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var r model.Request
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&r, id).Error; err != nil {
				return err
			}
			if err := guard(&r); err != nil {
				return err
			}
			return tx.Delete(&model.Request{}, id).Error
		})
	})
	return mapErr(err)
}

// mapErr translates driver and orm errors into the boundary taxonomy.
// Already-typed errors (guards, validation raised inside mutate) pass through.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errs.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.NotFound("request not found")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		// integrity constraint violation: surfaced verbatim, never retried
		return errs.BusinessRule(pqErr.Message, err)
	}
	return err
}
