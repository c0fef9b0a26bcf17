package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mator/internal/domain"
	"mator/internal/repository"
)

const createDownloadsTable = `
CREATE TABLE IF NOT EXISTS downloads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL UNIQUE,
	magnet_uri TEXT NOT NULL,
	info_hash TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	failure_kind TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	torrent_name TEXT NOT NULL DEFAULT '',
	file_path TEXT NOT NULL DEFAULT '',
	file_name TEXT NOT NULL DEFAULT '',
	file_size INTEGER NOT NULL DEFAULT 0,
	total_size INTEGER NOT NULL DEFAULT 0,
	archive_location TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	finished_at DATETIME NULL
);
CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);
`

type DownloadRepository struct {
	db *sql.DB
}

func NewDownloadRepository(db *sql.DB) repository.DownloadRepository {
	return &DownloadRepository{db: db}
}

func (r *DownloadRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createDownloadsTable); err != nil {
		return fmt.Errorf("create downloads table: %w", err)
	}
	return nil
}

func (r *DownloadRepository) Create(ctx context.Context, d *domain.Download) (int64, error) {
	d.CreatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
INSERT INTO downloads (request_id, magnet_uri, info_hash, status, created_at)
VALUES (?, ?, ?, ?, ?)`,
		d.RequestID,
		d.MagnetURI,
		d.InfoHash,
		string(d.Status),
		d.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert download: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	d.ID = id
	return id, nil
}

func (r *DownloadRepository) Finish(ctx context.Context, d *domain.Download) error {
	now := time.Now().UTC()
	d.FinishedAt = &now

	_, err := r.db.ExecContext(ctx, `
UPDATE downloads
SET status=?, failure_kind=?, message=?, torrent_name=?, file_path=?, file_name=?, file_size=?, total_size=?, archive_location=?, duration_ms=?, finished_at=?
WHERE id=?`,
		string(d.Status),
		d.FailureKind,
		d.Message,
		d.TorrentName,
		d.FilePath,
		d.FileName,
		d.FileSize,
		d.TotalSize,
		d.ArchiveLocation,
		d.DurationMS,
		now,
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("finish download: %w", err)
	}
	return nil
}

// FailDangling marks every download still recorded as running as failed.
// Called once at startup: a running row can only mean the previous
// process died mid-request.
func (r *DownloadRepository) FailDangling(ctx context.Context, message string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE downloads
SET status=?, failure_kind=?, message=?, finished_at=?
WHERE status=?`,
		string(domain.DownloadStatusFailed),
		string(domain.FailureUnexpected),
		message,
		time.Now().UTC(),
		string(domain.DownloadStatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("fail dangling downloads: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("dangling rows affected: %w", err)
	}
	return affected, nil
}

func (r *DownloadRepository) ListRecent(ctx context.Context, limit int) ([]domain.Download, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, request_id, magnet_uri, info_hash, status, failure_kind, message, torrent_name, file_path, file_name, file_size, total_size, archive_location, duration_ms, created_at, finished_at
FROM downloads
ORDER BY id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query downloads: %w", err)
	}
	defer rows.Close()

	var downloads []domain.Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		downloads = append(downloads, *d)
	}

	return downloads, rows.Err()
}

func scanDownload(scanner interface {
	Scan(dest ...any) error
}) (*domain.Download, error) {
	var (
		d          domain.Download
		status     string
		createdAt  time.Time
		finishedAt sql.NullTime
	)

	if err := scanner.Scan(
		&d.ID,
		&d.RequestID,
		&d.MagnetURI,
		&d.InfoHash,
		&status,
		&d.FailureKind,
		&d.Message,
		&d.TorrentName,
		&d.FilePath,
		&d.FileName,
		&d.FileSize,
		&d.TotalSize,
		&d.ArchiveLocation,
		&d.DurationMS,
		&createdAt,
		&finishedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("download not found")
		}
		return nil, fmt.Errorf("scan download: %w", err)
	}

	d.Status = domain.DownloadStatus(status)
	d.CreatedAt = createdAt.Local()
	if finishedAt.Valid {
		t := finishedAt.Time.Local()
		d.FinishedAt = &t
	}

	return &d, nil
}
