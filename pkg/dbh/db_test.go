package dbh

import (
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID        int64 `gorm:"primaryKey"`
	Name      string
	CreatedAt IntTime
}

func TestOpenDB(t *testing.T) {
	log := logs.NewTestingLog(t)
	dbc := MakeSqliteConfig(filepath.Join(t.TempDir(), "test.sqlite"))
	migs := MakeMigrations(log, []string{
		`CREATE TABLE widget(id INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE)`,
		`ALTER TABLE widget ADD COLUMN created_at INT`,
	})

	db, err := OpenDB(log, dbc, migs, 0)
	require.NoError(t, err)
	require.NoError(t, db.Create(&widget{Name: "a", CreatedAt: 1234}).Error)
	err = db.Create(&widget{Name: "a"}).Error
	require.ErrorContains(t, err, "UNIQUE constraint failed")
	sqlDB, _ := db.DB()
	sqlDB.Close()

	// Re-opening runs no migrations, and keeps the data
	db, err = OpenDB(log, dbc, migs, 0)
	require.NoError(t, err)
	w := widget{}
	require.NoError(t, db.First(&w).Error)
	require.Equal(t, "a", w.Name)
	require.Equal(t, IntTime(1234), w.CreatedAt)
	sqlDB, _ = db.DB()
	sqlDB.Close()

	// Wipe
	db, err = OpenDB(log, dbc, migs, DBConnectFlagWipeDB)
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&widget{}).Count(&count).Error)
	require.Equal(t, int64(0), count)
	sqlDB, _ = db.DB()
	sqlDB.Close()
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := OpenDB(logs.NewTestingLog(t), DBConfig{Driver: "postgres"}, nil, 0)
	require.Error(t, err)
}
