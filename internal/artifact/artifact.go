// Package artifact persists the opaque completion files (ticket, report)
// attached to a request on finish, keyed by request id + kind.
package artifact

import (
	"context"
	"errors"
	"time"

	"github.com/fieldops/request-service/internal/errs"
	"github.com/fieldops/request-service/internal/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Kind string

const (
	KindTicket Kind = "ticket"
	KindReport Kind = "report"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindTicket, KindReport:
		return Kind(s), nil
	}
	return "", errs.Validation("unknown artifact kind %q", s)
}

type Artifact struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	RequestID   uint64    `gorm:"uniqueIndex:idx_artifacts_request_kind;not null" json:"request_id"`
	Kind        Kind      `gorm:"type:varchar(16);uniqueIndex:idx_artifacts_request_kind;not null" json:"kind"`
	Key         string    `gorm:"type:varchar(64);not null" json:"key"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	ContentType string    `gorm:"type:varchar(255);not null" json:"content_type"`
	Data        []byte    `gorm:"type:bytea;not null" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Store struct {
	db    *gorm.DB
	retry store.Policy
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, retry: store.DefaultPolicy()}
}

// Save upserts the artifact for (requestID, kind). Re-uploads replace the
// previous payload in place.
func (s *Store) Save(ctx context.Context, requestID uint64, kind Kind, name, contentType string, data []byte) error {
	a := &Artifact{
		RequestID:   requestID,
		Kind:        kind,
		Key:         uuid.NewString(),
		Name:        name,
		ContentType: contentType,
		Data:        data,
	}
	return s.retry.Do(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}, {Name: "kind"}},
			DoUpdates: clause.AssignmentColumns([]string{"key", "name", "content_type", "data", "updated_at"}),
		}).Create(a).Error
	})
}

func (s *Store) Load(ctx context.Context, requestID uint64, kind Kind) (*Artifact, error) {
	var a Artifact
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Where("request_id = ? AND kind = ?", requestID, kind).First(&a).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("no %s artifact for request %d", kind, requestID)
		}
		return nil, err
	}
	return &a, nil
}
