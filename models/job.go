package models

type JobStatus int

const (
	Running JobStatus = iota
	Stopped
	Error
)

// Job is the persisted description of a restream job. AutoRestart marks jobs
// the restore daemon brings back after a process restart.
type Job struct {
	ID          string `gorm:"type:varchar(16);primary_key"`
	SourceURL   string `gorm:"type:varchar(256);uniqueIndex"`
	Quality     string `gorm:"type:varchar(16)"`
	AutoRestart bool
	Status      JobStatus
}
