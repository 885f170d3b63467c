package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"arcadeswap/core/events"
)

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("arcadeswapd audit path must be configured")

const maxListLimit = 500

// Storage is the audit journal of arcadeswapd. Engine state lives in the
// LevelDB-backed state manager; this database only records what happened.
type Storage struct {
	db     *gorm.DB
	now    func() time.Time
	logger *slog.Logger
}

// Open initialises the journal using a sqlite-compatible DSN.
func Open(dsn string) (*Storage, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := gorm.Open(sqlite.Open(trimmed), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db, now: time.Now, logger: slog.Default()}, nil
}

// SetLogger overrides the logger used for journal write failures.
func (s *Storage) SetLogger(l *slog.Logger) {
	if s != nil && l != nil {
		s.logger = l
	}
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordOperation appends an operation to the journal.
func (s *Storage) RecordOperation(ctx context.Context, rec *OperationRecord) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if rec == nil {
		return fmt.Errorf("operation record required")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

// OperationFilter narrows ListOperations.
type OperationFilter struct {
	GameID  *uint64
	Account string
	Limit   int
}

// ListOperations returns the newest operations first.
func (s *Storage) ListOperations(ctx context.Context, filter OperationFilter) ([]OperationRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	query := s.db.WithContext(ctx).Model(&OperationRecord{})
	if filter.GameID != nil {
		query = query.Where("game_id = ?", *filter.GameID)
	}
	if account := strings.TrimSpace(filter.Account); account != "" {
		query = query.Where("account = ?", strings.ToLower(account))
	}
	var out []OperationRecord
	if err := query.Order("created_at DESC").Limit(clampLimit(filter.Limit)).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	return out, nil
}

// RecordEvent persists an event with its attributes encoded as JSON.
func (s *Storage) RecordEvent(ctx context.Context, evt events.Event) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if evt == nil {
		return nil
	}
	payload := evt.Event()
	attrs := map[string]string{}
	if payload != nil && payload.Attributes != nil {
		attrs = payload.Attributes
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	rec := EventRecord{ID: uuid.New(), Type: evt.EventType(), Attributes: string(encoded), CreatedAt: s.now().UTC()}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Emit implements events.Emitter. Failures are logged; the journal never
// blocks the engine.
func (s *Storage) Emit(evt events.Event) {
	if err := s.RecordEvent(context.Background(), evt); err != nil && s != nil {
		s.logger.Error("audit event write failed", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// ListEvents returns the newest events first, optionally filtered by type.
func (s *Storage) ListEvents(ctx context.Context, eventType string, limit int) ([]EventRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	query := s.db.WithContext(ctx).Model(&EventRecord{})
	if eventType = strings.TrimSpace(eventType); eventType != "" {
		query = query.Where("type = ?", eventType)
	}
	var out []EventRecord
	if err := query.Order("created_at DESC").Limit(clampLimit(limit)).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

// RecordOracleSnapshot stores the aggregated median for an asset. Repeated
// proofs are ignored.
func (s *Storage) RecordOracleSnapshot(ctx context.Context, asset, price string, feeders []string, proofID string, observed time.Time) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	var existing int64
	if err := s.db.WithContext(ctx).Model(&OracleSnapshot{}).Where("proof_id = ?", proofID).Count(&existing).Error; err != nil {
		return fmt.Errorf("lookup snapshot: %w", err)
	}
	if existing > 0 {
		return nil
	}
	snap := OracleSnapshot{
		ID:         uuid.New(),
		Asset:      strings.ToUpper(strings.TrimSpace(asset)),
		Price:      price,
		Feeders:    strings.Join(feeders, ","),
		ProofID:    proofID,
		ObservedAt: observed.UTC(),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&snap).Error; err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// LatestOracleSnapshot returns the newest snapshot for asset.
func (s *Storage) LatestOracleSnapshot(ctx context.Context, asset string) (*OracleSnapshot, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	var snap OracleSnapshot
	err := s.db.WithContext(ctx).
		Where("asset = ?", strings.ToUpper(strings.TrimSpace(asset))).
		Order("observed_at DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return &snap, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
