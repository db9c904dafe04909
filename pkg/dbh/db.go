// Package dbh opens sqlite databases through gorm, after bringing their schema up to date
// with a linear list of SQL migrations.
package dbh

import (
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/logs"
	_ "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// DBConnectFlags are flags passed to OpenDB.
type DBConnectFlags int

const DriverSqlite = "sqlite3"

const (
	// DBConnectFlagWipeDB causes the entire DB to erased, and re-initialized from scratch (useful for unit tests).
	DBConnectFlagWipeDB DBConnectFlags = 1 << iota
)

// DBConfig identifies a database. Only sqlite is supported.
type DBConfig struct {
	Driver   string
	Database string // Filename, or ":memory:"
}

func MakeSqliteConfig(filename string) DBConfig {
	return DBConfig{
		Driver:   DriverSqlite,
		Database: filename,
	}
}

// DSN returns the connection string. We always enable WAL and a busy timeout, because
// the analysis service has concurrent readers and writers.
func (db *DBConfig) DSN() string {
	if db.Database == ":memory:" {
		return db.Database
	}
	return db.Database + "?_journal_mode=WAL&_busy_timeout=5000"
}

// MakeMigrations turns a sequence of SQL expression into burntsushi migrations.
func MakeMigrations(log logs.Log, sql []string) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0
	for _, str := range sql {
		migs = append(migs, MakeMigrationFromSQL(log, &idx, str))
	}
	return migs
}

// MakeMigrationFromSQL turns an SQL string into a burntsushi migration
func MakeMigrationFromSQL(log logs.Log, migrationNumber *int, sql string) migration.Migrator {
	idx := *migrationNumber + 1
	*migrationNumber++

	return func(tx migration.LimitedTx) error {
		summary := strings.TrimSpace(sql)
		l := min(len(summary), 40)
		if firstNewline := strings.IndexAny(summary, "\n\r"); firstNewline != -1 && firstNewline < l {
			l = firstNewline
		}
		log.Infof("Running migration %v: '%v...'", idx, summary[:l])
		_, err := tx.Exec(sql)
		return err
	}
}

// OpenDB creates a new DB, or opens an existing one, and runs all the migrations before returning.
func OpenDB(log logs.Log, dbc DBConfig, migrations []migration.Migrator, flags DBConnectFlags) (*gorm.DB, error) {
	if dbc.Driver != DriverSqlite {
		return nil, fmt.Errorf("Unsupported database driver '%v'", dbc.Driver)
	}
	if flags&DBConnectFlagWipeDB != 0 {
		if err := DropAllTables(log, dbc); err != nil {
			return nil, err
		}
	}

	db, err := migration.Open(dbc.Driver, dbc.DSN(), migrations)
	if err != nil {
		return nil, fmt.Errorf("Failed to migrate database '%v': %w", dbc.Database, err)
	}
	db.Close()
	return gormOpen(dbc.DSN())
}

// DropAllTables deletes the database file.
// If the database does not exist, returns nil.
func DropAllTables(log logs.Log, dbc DBConfig) error {
	if dbc.Database == ":memory:" {
		return nil
	}
	log.Warnf("Erasing entire DB '%v'", dbc.Database)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		err := os.Remove(dbc.Database + suffix)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func gormOpen(dsn string) (*gorm.DB, error) {
	newLogger := logger.New(
		stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true, // Record not found is just never a loggable thing.
			Colorful:                  true,
		},
	)

	config := &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			// Disable pluralization of tables, so that our migrations name the tables that gorm uses.
			SingularTable: true,
		},
		Logger: newLogger,
	}
	return gorm.Open(sqlite.Open(dsn), config)
}
