package dbh

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stamped struct {
	ID      int64   `gorm:"primaryKey" json:"id"`
	Created IntTime `json:"created"`
}

func TestIntTime(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Exec("CREATE TABLE stamped (id INTEGER PRIMARY KEY, created INT)").Error)

	// Zero is NULL in the database, and 0 in JSON
	empty := stamped{ID: 1, Created: MakeIntTime(time.Time{})}
	require.Equal(t, IntTime(0), empty.Created)
	require.NoError(t, db.Save(&empty).Error)
	var raw sql.NullInt64
	require.NoError(t, db.Raw("SELECT created FROM stamped WHERE id = 1").Row().Scan(&raw))
	require.False(t, raw.Valid)
	read := stamped{}
	require.NoError(t, db.First(&read, 1).Error)
	require.Equal(t, empty, read)
	j, err := json.Marshal(&empty)
	require.NoError(t, err)
	require.Equal(t, `{"id":1,"created":0}`, string(j))

	when := time.Date(2024, time.March, 4, 5, 6, 7, 890*1000*1000, time.UTC)
	full := stamped{ID: 2, Created: MakeIntTime(when)}
	require.NoError(t, db.Save(&full).Error)
	read = stamped{}
	require.NoError(t, db.First(&read, 2).Error)
	require.Equal(t, when.UnixMilli(), int64(read.Created))
}

func openTestDB(t *testing.T) *gorm.DB {
	db, err := gormOpen(filepath.Join(t.TempDir(), "unit-test.sqlite"))
	require.NoError(t, err)
	return db
}
