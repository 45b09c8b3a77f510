// Package archive 在 SQLite 中记录每次简报发送的结果。
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/iabetor/aeronews/internal/logger"
	_ "modernc.org/sqlite"
)

// 投递状态。
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// timeLayout 固定宽度，保证按字符串排序即按时间排序。
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB 是发送记录数据库连接。
type DB struct {
	*sql.DB
	path string
}

// Run 一次简报运行。
type Run struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	ArticleCount int        `json:"article_count"`
	FeedFailures int        `json:"feed_failures"`
	DryRun       bool       `json:"dry_run"`
	Deliveries   []Delivery `json:"deliveries"`
}

// Sent 返回成功投递数。
func (r Run) Sent() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Status == StatusSent {
			n++
		}
	}
	return n
}

// Delivery 对一个收件人的投递结果。
type Delivery struct {
	Recipient string `json:"recipient"`
	Status    string `json:"status"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Open 打开或创建数据库。
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("数据库路径不能为空")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// SQLite 单写者，避免连接池并发写导致 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("启用外键约束失败: %w", err)
	}

	logger.Infof("[archive] 数据库已打开: %s", dbPath)
	return &DB{DB: db, path: dbPath}, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

// Migrate 创建表和索引。
func (db *DB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS digest_runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			article_count INTEGER NOT NULL DEFAULT 0,
			feed_failures INTEGER NOT NULL DEFAULT 0,
			dry_run BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS deliveries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES digest_runs(id) ON DELETE CASCADE,
			recipient TEXT NOT NULL,
			status TEXT NOT NULL,
			error_kind TEXT DEFAULT '',
			error TEXT DEFAULT ''
		)`,
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_digest_runs_started_at ON digest_runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_run_id ON deliveries(run_id)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			logger.Warnf("[archive] 创建索引失败: %v", err)
		}
	}

	logger.Debugf("[archive] 数据库迁移完成")
	return nil
}

// RecordRun 在一个事务中写入运行记录及其投递结果，ID 为空时生成 UUID。
func (db *DB) RecordRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO digest_runs (id, started_at, article_count, feed_failures, dry_run) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(timeLayout), run.ArticleCount, run.FeedFailures, run.DryRun,
	)
	if err != nil {
		return fmt.Errorf("写入运行记录失败: %w", err)
	}

	for _, d := range run.Deliveries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO deliveries (run_id, recipient, status, error_kind, error) VALUES (?, ?, ?, ?, ?)`,
			run.ID, d.Recipient, d.Status, d.ErrorKind, d.Error,
		)
		if err != nil {
			return fmt.Errorf("写入投递记录失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	logger.Infof("[archive] 已记录运行 %s（%d 个收件人）", run.ID, len(run.Deliveries))
	return nil
}

// RecentRuns 按时间倒序返回最近 limit 次运行（含投递结果）。
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, started_at, article_count, feed_failures, dry_run
		 FROM digest_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询运行记录失败: %w", err)
	}

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			startedAt string
		)
		if err := rows.Scan(&r.ID, &startedAt, &r.ArticleCount, &r.FeedFailures, &r.DryRun); err != nil {
			rows.Close()
			return nil, fmt.Errorf("读取运行记录失败: %w", err)
		}
		t, err := time.Parse(timeLayout, startedAt)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("解析运行 %s 的开始时间失败: %w", r.ID, err)
		}
		r.StartedAt = t
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range runs {
		deliveries, err := db.deliveries(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Deliveries = deliveries
	}
	return runs, nil
}

func (db *DB) deliveries(ctx context.Context, runID string) ([]Delivery, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT recipient, status, error_kind, error FROM deliveries WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("查询投递记录失败: %w", err)
	}
	defer rows.Close()

	var result []Delivery
	for rows.Next() {
		var d Delivery
		var kind, msg sql.NullString
		if err := rows.Scan(&d.Recipient, &d.Status, &kind, &msg); err != nil {
			return nil, fmt.Errorf("读取投递记录失败: %w", err)
		}
		d.ErrorKind = kind.String
		d.Error = msg.String
		result = append(result, d)
	}
	return result, rows.Err()
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
