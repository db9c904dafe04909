package analysisd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/formtrack/pkg/analysis"
	"github.com/cyclopcam/formtrack/pkg/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Video is one remote session
type Video struct {
	ID               string      `gorm:"primaryKey" json:"id"`
	Domain           string      `json:"domain"`
	Activity         string      `json:"activity"`
	Inference        string      `json:"inference"`
	ResolutionWidth  int         `json:"resolutionWidth"`
	ResolutionHeight int         `json:"resolutionHeight"`
	Created          dbh.IntTime `json:"created"`
}

// Frame is one uploaded frame. The landmarks are stored in the same JSON form as they are uploaded.
type Frame struct {
	VideoID    string `gorm:"primaryKey"`
	FrameIndex int64  `gorm:"primaryKey"`
	Timestamp  float64
	Landmarks  string
}

func migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE video(
			id TEXT PRIMARY KEY,
			domain TEXT NOT NULL,
			activity TEXT NOT NULL,
			inference TEXT NOT NULL,
			resolution_width INT NOT NULL,
			resolution_height INT NOT NULL,
			created INT
		);

		CREATE TABLE frame(
			video_id TEXT NOT NULL,
			frame_index INT NOT NULL,
			timestamp REAL NOT NULL,
			landmarks TEXT NOT NULL,
			PRIMARY KEY(video_id, frame_index)
		);
	`))

	return migs
}

func openDB(log logs.Log, dbFilename string) (*gorm.DB, error) {
	if dbFilename != ":memory:" {
		os.MkdirAll(filepath.Dir(dbFilename), 0777)
	}
	db, err := dbh.OpenDB(log, dbh.MakeSqliteConfig(dbFilename), migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open database %v: %w", dbFilename, err)
	}
	return db, nil
}

// saveFrames inserts the frames, replacing any that were uploaded before
func saveFrames(db *gorm.DB, videoID string, frames []analysis.FrameRecord) error {
	if len(frames) == 0 {
		return nil
	}
	rows := make([]Frame, 0, len(frames))
	for _, f := range frames {
		landmarks, err := json.Marshal(f)
		if err != nil {
			return err
		}
		rows = append(rows, Frame{
			VideoID:    videoID,
			FrameIndex: f.FrameIndex,
			Timestamp:  f.Timestamp,
			Landmarks:  string(landmarks),
		})
	}
	return db.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(rows, 200).Error
}

// loadFrames returns all of the frames of a video, in order
func loadFrames(db *gorm.DB, videoID string) ([]analysis.FrameRecord, error) {
	rows := []Frame{}
	if err := db.Where("video_id = ?", videoID).Order("frame_index").Find(&rows).Error; err != nil {
		return nil, err
	}
	frames := make([]analysis.FrameRecord, 0, len(rows))
	for _, r := range rows {
		f := analysis.FrameRecord{}
		if err := json.Unmarshal([]byte(r.Landmarks), &f); err != nil {
			return nil, fmt.Errorf("Corrupt frame %v/%v: %w", videoID, r.FrameIndex, err)
		}
		frames = append(frames, f)
	}
	return frames, nil
}
