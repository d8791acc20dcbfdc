package models

import (
	"path/filepath"
	"testing"

	"github.com/MeloQi/EasyGoLib/db"
)

func TestJobPersistence(t *testing.T) {
	err := db.Init(&db.DBConfig{
		Type:     db.SQLite,
		File:     filepath.Join(t.TempDir(), "restream.db"),
		URI:      "",
		LogLevel: "silent",
	})
	if err != nil {
		t.Skipf("db init: %v", err)
	}
	defer db.Close()
	db.SQL.AutoMigrate(Job{}, Destination{})
	db.SQL.Create(&Job{
		ID:          "1234",
		SourceURL:   "rtmp://src.example.com/live/in",
		Quality:     "source",
		AutoRestart: true,
		Status:      Stopped,
	})
	db.SQL.Create(&Destination{
		ID:      "5678",
		JobID:   "1234",
		Name:    "primary",
		URL:     "rtmp://a.example.com/live/x",
		Enabled: true,
	})

	count := int64(0)
	db.SQL.Model(Destination{}).Where("job_id = ?", "1234").Count(&count)
	if count != 1 {
		t.Fatalf("destination count = %d, want 1", count)
	}
}
