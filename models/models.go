package models

import (
	"strings"

	"github.com/MeloQi/EasyGoLib/db"
	"github.com/MeloQi/EasyGoLib/utils"
)

func Init() (err error) {
	err = db.Init(&db.DBConfig{
		Type:     getDBType(utils.Conf().Section("db").Key("db_type").MustString("sqlite")),
		File:     utils.Conf().Section("db").Key("db_datafile").MustString(""),
		URI:      utils.Conf().Section("db").Key("db_uri").MustString(""),
		LogLevel: utils.Conf().Section("db").Key("db_log_level").MustString("silent"),
	})
	if err != nil {
		return
	}
	db.SQL.AutoMigrate(Job{}, Destination{})
	return
}

func getDBType(t string) db.DBType {
	st := strings.ToLower(t)
	switch st {
	case "mysql":
		return db.MySQL
	case "postgres":
		return db.Postgres
	default:
		return db.SQLite
	}
}

func Close() {
	db.Close()
}
