package models

import "time"

type ReconcileKind string

const (
	ReconcileKindLedger ReconcileKind = "ledger"
	ReconcileKindFanout ReconcileKind = "fanout"
)

// ReconcileTask records a side effect that failed after its triggering
// event committed (PostgreSQL). A task is pending until DoneAt or DeadAt is
// set; dead tasks are kept for inspection and never replayed.
type ReconcileTask struct {
	ID        uint          `json:"id" gorm:"primaryKey"`
	Key       string        `json:"key" gorm:"size:200;uniqueIndex"`
	Kind      ReconcileKind `json:"kind" gorm:"size:20;index"`
	Payload   string        `json:"payload" gorm:"type:text"`
	Attempts  int           `json:"attempts" gorm:"default:0"`
	LastError string        `json:"last_error"`
	DoneAt    *time.Time    `json:"done_at" gorm:"index"`
	DeadAt    *time.Time    `json:"dead_at" gorm:"index"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
