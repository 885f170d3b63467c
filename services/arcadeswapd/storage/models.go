package storage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Operation status values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// OperationRecord journals one admitted or rejected engine call.
type OperationRecord struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Operation      string    `gorm:"index"`
	GameID         uint64    `gorm:"index"`
	Account        string    `gorm:"index"`
	Digest         string    `gorm:"index"`
	Status         string
	Reason         string
	ReserveAmount  string
	CurrencyAmount string
	Price          string
	DurationMicros int64
	CreatedAt      time.Time `gorm:"index"`
}

// EventRecord persists an emitted engine event.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type       string    `gorm:"index"`
	Attributes string
	CreatedAt  time.Time `gorm:"index"`
}

// OracleSnapshot stores an aggregated price and the feeds behind it.
type OracleSnapshot struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Asset      string    `gorm:"index"`
	Price      string
	Feeders    string
	ProofID    string `gorm:"uniqueIndex"`
	ObservedAt time.Time
	CreatedAt  time.Time
}

// AutoMigrate performs all schema migrations for the journal.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&OperationRecord{},
		&EventRecord{},
		&OracleSnapshot{},
	)
}
