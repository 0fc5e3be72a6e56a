package database

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"

	"github.com/pressly/goose/v3"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/gobbler/migrations"
)

// RunMigrations applies the migrations found in dir, or the embedded ones
// when dir does not exist.
func RunMigrations(database *dbpg.DB, dir string) error {
	return Migrate(database.Master, "postgres", dir)
}

func Migrate(db *sql.DB, dialect, dir string) error {
	var fsys fs.FS = migrations.FS
	path := "."
	if dir != "" {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			fsys = os.DirFS(dir)
		}
	}

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, path); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, err := goose.GetDBVersion(db)
	if err == nil {
		zlog.Logger.Info().Int64("version", version).Msg("Database migrations applied")
	}
	return nil
}
