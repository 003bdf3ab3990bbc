// Package gormstore implements registry/store.ConversationStore on top of GORM.
// The sqlite and postgres plugins share it and differ only in how they open the
// database and classify driver errors.
package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmem-service/internal/model"
	registrystore "github.com/chirino/chatmem-service/internal/registry/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultListLimit = 100

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces time.Now for bookkeeping timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRowLocking makes upserts read the existing row with SELECT ... FOR UPDATE.
// Engines that serialize writers at BEGIN (sqlite with _txlock=immediate) do not need it.
func WithRowLocking() Option {
	return func(s *Store) { s.lockRows = true }
}

// WithUniqueViolation sets the classifier used to detect a lost insert race.
func WithUniqueViolation(fn func(error) bool) Option {
	return func(s *Store) { s.isUniqueViolation = fn }
}

// Store is a ConversationStore backed by a *gorm.DB.
type Store struct {
	db                *gorm.DB
	now               func() time.Time
	lockRows          bool
	isUniqueViolation func(error) bool
}

var _ registrystore.ConversationStore = (*Store)(nil)

// New wraps an open database.
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:                db,
		now:               time.Now,
		isUniqueViolation: func(err error) bool { return errors.Is(err, gorm.ErrDuplicatedKey) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *gorm.DB { return s.db }

// Upsert looks the conversation up and then inserts or replaces it inside one
// transaction. An insert that loses a race against a concurrent writer of the
// same ID is retried once, and then takes the update path.
func (s *Store) Upsert(ctx context.Context, conv *model.Conversation) (*registrystore.UpsertResult, error) {
	status, err := s.upsertTx(ctx, conv)
	if err != nil && s.isUniqueViolation(err) {
		log.Debug("Upsert lost insert race, retrying as update", "id", conv.ID)
		status, err = s.upsertTx(ctx, conv)
	}
	if err != nil {
		return nil, &registrystore.StorageError{Op: "upsert", Err: err}
	}
	return &registrystore.UpsertResult{ID: conv.ID, Status: status}, nil
}

func (s *Store) upsertTx(ctx context.Context, conv *model.Conversation) (registrystore.UpsertStatus, error) {
	var status registrystore.UpsertStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now().UTC()
		row := *conv
		row.Normalize()

		lookup := tx.Select("id", "db_created_at")
		if s.lockRows {
			lookup = lookup.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var existing model.Conversation
		err := lookup.Where("id = ?", conv.ID).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row.DBCreatedAt = now
			row.DBUpdatedAt = now
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			status = registrystore.StatusCreated
			return nil
		}
		if err != nil {
			return err
		}

		// Full replace: every caller supplied column is written, including zero values.
		row.DBCreatedAt = existing.DBCreatedAt
		row.DBUpdatedAt = now
		if err := tx.Model(&row).Select("*").Omit("id", "db_created_at").Updates(&row).Error; err != nil {
			return err
		}
		status = registrystore.StatusUpdated
		return nil
	})
	return status, err
}

// Get returns the conversation or a *registrystore.NotFoundError.
func (s *Store) Get(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "conversation", ID: id}
	}
	if err != nil {
		return nil, &registrystore.StorageError{Op: "get", Err: err}
	}
	conv.Normalize()
	return &conv, nil
}

// List returns a page of conversations ordered by db_updated_at descending.
// The ID breaks ties so pages are stable.
func (s *Store) List(ctx context.Context, filter registrystore.ListFilter) ([]model.Conversation, error) {
	q := s.db.WithContext(ctx).Model(&model.Conversation{})
	if filter.Platform != nil {
		q = q.Where("platform = ?", *filter.Platform)
	}
	if filter.Processed != nil {
		q = q.Where("processed = ?", *filter.Processed)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}

	convs := []model.Conversation{}
	err := q.Order("db_updated_at DESC").Order("id ASC").Offset(skip).Limit(limit).Find(&convs).Error
	if err != nil {
		return nil, &registrystore.StorageError{Op: "list", Err: err}
	}
	for i := range convs {
		convs[i].Normalize()
	}
	return convs, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
