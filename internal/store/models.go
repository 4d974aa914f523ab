package store

import "time"

// JobHistoryEntry is one row of the append-only job-history audit log: a
// single jobStateChanged transition, independent of the job's current
// sidecar state (spec §6, §7).
type JobHistoryEntry struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	MoleQueueID uint64    `gorm:"not null;index"`
	Queue       string    `gorm:"not null;default:''"`
	Program     string    `gorm:"not null;default:''"`
	OldState    string    `gorm:"not null"`
	NewState    string    `gorm:"not null"`
	RecordedAt  time.Time `gorm:"not null;index"`
}

// TableName pins the table name so it survives GORM's default pluralization
// rules changing out from under the embedded migration SQL.
func (JobHistoryEntry) TableName() string { return "job_history" }
