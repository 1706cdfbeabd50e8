// Package history keeps a persistent log of finished drink cycles in a
// local sqlite database, one row per cycle.
package history

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sweeney/brew-controller/internal/machine"
	"github.com/sweeney/brew-controller/internal/order"
)

// Outcome classifies how a cycle ended.
type Outcome string

const (
	OutcomeDone  Outcome = "done"
	OutcomeError Outcome = "error"
)

// CycleRecord is one finished cycle.
type CycleRecord struct {
	ID         uint      `gorm:"primarykey" json:"-"`
	CycleID    string    `gorm:"uniqueIndex;size:36" json:"cycle_id"`
	Recipe     string    `gorm:"size:16;index" json:"recipe"`
	Size       string    `gorm:"size:8" json:"size,omitempty"`
	Sugar      string    `gorm:"size:8" json:"sugar,omitempty"`
	Outcome    Outcome   `gorm:"size:8;index" json:"outcome"`
	Error      string    `gorm:"size:32" json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Store records and queries cycle history.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the history database at path and migrates the
// schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.AutoMigrate(&CycleRecord{}); err != nil {
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &Store{db: db}, nil
}

// RecordEvent persists terminal cycle events; other event types are
// ignored.
func (s *Store) RecordEvent(ev machine.Event, ord order.Order) error {
	var outcome Outcome
	switch ev.Type {
	case machine.EventCycleDone:
		outcome = OutcomeDone
	case machine.EventCycleError:
		outcome = OutcomeError
	default:
		return nil
	}

	rec := CycleRecord{
		CycleID:    ev.CycleID,
		Recipe:     string(ev.Recipe),
		Size:       string(ord.Size),
		Sugar:      string(ord.Sugar),
		Outcome:    outcome,
		Error:      string(ev.Error),
		FinishedAt: ev.Time,
		DurationMS: ev.Elapsed.Milliseconds(),
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	return nil
}

// Recent returns the most recently finished cycles, newest first.
func (s *Store) Recent(limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []CycleRecord
	err := s.db.Order("finished_at desc").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return out, nil
}

// CountByOutcome returns how many recorded cycles ended with the given
// outcome.
func (s *Store) CountByOutcome(o Outcome) (int64, error) {
	var n int64
	err := s.db.Model(&CycleRecord{}).Where("outcome = ?", o).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
