// Package repo is the GORM/Postgres persistence layer for ledger events.
// Grounded on the teacher's pkg/oms/repo (IRepo/IOrderEvent interfaces
// over a *gorm.DB, Create/BulkCreate methods), narrowed to the single
// table the ledger needs.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/orderflow-labs/mmcore/pkg/ledger/model"
)

// IEventRepo persists ledger event rows.
type IEventRepo interface {
	Create(ctx context.Context, record *model.EventRecord) error
	BulkCreate(ctx context.Context, records []*model.EventRecord) error
}

// IRepo is the ledger's repository facade, mirroring the teacher's
// IRepo/Order()/OrderEvent() accessor shape.
type IRepo interface {
	Event() IEventRepo
}

type repo struct {
	db *gorm.DB
}

// NewRepo wraps an already-connected *gorm.DB (see pkg/infra/postgres).
func NewRepo(db *gorm.DB) IRepo {
	return &repo{db: db}
}

func (r *repo) Event() IEventRepo {
	return &eventRepo{db: r.db}
}

type eventRepo struct {
	db *gorm.DB
}

func (r *eventRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// Create inserts one event row, ignoring a conflict on the primary key so
// a worker-level retry after a crash-before-ack never double-inserts
// (spec.md §8 Scenario G).
func (r *eventRepo) Create(ctx context.Context, record *model.EventRecord) error {
	return r.dbWithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record).Error
}

func (r *eventRepo) BulkCreate(ctx context.Context, records []*model.EventRecord) error {
	return r.dbWithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(records).Error
}
