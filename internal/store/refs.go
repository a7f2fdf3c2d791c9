package store

import (
	"context"
	"errors"

	"github.com/fieldops/request-service/internal/errs"
	"github.com/fieldops/request-service/internal/model"
	"gorm.io/gorm"
)

func (s *DB) SiteByID(ctx context.Context, id uint64) (*model.Site, error) {
	var site model.Site
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Preload("Client").First(&site, id).Error
	})
	if err != nil {
		return nil, notFoundAs(err, "site %d not found", id)
	}
	return &site, nil
}

func (s *DB) SystemByID(ctx context.Context, id uint64) (*model.System, error) {
	var sys model.System
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Preload("SystemType").First(&sys, id).Error
	})
	if err != nil {
		return nil, notFoundAs(err, "system %d not found", id)
	}
	return &sys, nil
}

func (s *DB) SystemTypeByID(ctx context.Context, id uint64) (*model.SystemType, error) {
	var st model.SystemType
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).First(&st, id).Error
	})
	if err != nil {
		return nil, notFoundAs(err, "system type %d not found", id)
	}
	return &st, nil
}

func (s *DB) UserByID(ctx context.Context, id uint64) (*model.User, error) {
	var u model.User
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).First(&u, id).Error
	})
	if err != nil {
		return nil, notFoundAs(err, "user %d not found", id)
	}
	return &u, nil
}

func (s *DB) RequestTypeByID(ctx context.Context, id uint64) (*model.RequestType, error) {
	var rt model.RequestType
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).First(&rt, id).Error
	})
	if err != nil {
		return nil, notFoundAs(err, "request type %d not found", id)
	}
	return &rt, nil
}

func (s *DB) DefaultRequestType(ctx context.Context) (*model.RequestType, error) {
	var rt model.RequestType
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Where("client_default = ?", true).First(&rt).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("no default request type configured")
		}
		return nil, err
	}
	return &rt, nil
}

func notFoundAs(err error, format string, id uint64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.NotFound(format, id)
	}
	return err
}
