package models

// Destination is a persisted push endpoint of a job. Name is unique within
// its job only, different jobs may reuse names.
type Destination struct {
	ID      string `gorm:"type:varchar(16);primary_key"`
	JobID   string `gorm:"type:varchar(16);index;uniqueIndex:idx_job_name"`
	Name    string `gorm:"type:varchar(64);uniqueIndex:idx_job_name"`
	URL     string `gorm:"type:varchar(256)"`
	Enabled bool
}
