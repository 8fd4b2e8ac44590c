// Package journal 把导入记录写进 SQLite，只记录，不做去重
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Hara602/dashcamSentry/internal/model"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS imports (
	id TEXT PRIMARY KEY,
	run_id TEXT,
	source TEXT NOT NULL,
	destination TEXT NOT NULL,
	folder TEXT NOT NULL,
	size INTEGER NOT NULL,
	recorded_at TEXT NOT NULL,
	imported_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS imports_folder ON imports(folder);
`

type Journal struct {
	db *sql.DB
}

// Open 打开（必要时创建）数据库
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// 单线程使用，一个连接足够
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record 追加一条导入记录
func (j *Journal) Record(ctx context.Context, rec model.ImportRecord) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO imports(id, run_id, source, destination, folder, size, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		uuid.NewString(), rec.RunID, rec.Source, rec.Destination, rec.Folder, rec.Size, rec.TimeStamp.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert import: %w", err)
	}
	return nil
}

// Run 返回某次插卡导入的所有记录，按录制时间排序
func (j *Journal) Run(ctx context.Context, runID string) ([]model.ImportRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT run_id, source, destination, folder, size, recorded_at FROM imports WHERE run_id = ? ORDER BY recorded_at, destination",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query imports: %w", err)
	}
	defer rows.Close()

	var out []model.ImportRecord
	for rows.Next() {
		var rec model.ImportRecord
		var recordedAt string
		if err := rows.Scan(&rec.RunID, &rec.Source, &rec.Destination, &rec.Folder, &rec.Size, &recordedAt); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse recorded_at %q: %w", recordedAt, err)
		}
		rec.TimeStamp = ts
		out = append(out, rec)
	}
	return out, rows.Err()
}
