package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"mator/internal/domain"
	"mator/internal/repository"
)

const createDownloadFilesTable = `
CREATE TABLE IF NOT EXISTS download_files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	download_id INTEGER NOT NULL,
	path TEXT NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY(download_id) REFERENCES downloads(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_download_files_download_id ON download_files(download_id);
`

type DownloadFileRepository struct {
	db *sql.DB
}

func NewDownloadFileRepository(db *sql.DB) repository.DownloadFileRepository {
	return &DownloadFileRepository{db: db}
}

func (r *DownloadFileRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createDownloadFilesTable); err != nil {
		return fmt.Errorf("create download_files table: %w", err)
	}
	return nil
}

func (r *DownloadFileRepository) ReplaceForDownload(ctx context.Context, downloadID int64, files []domain.DownloadFile) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // safe no-op on commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM download_files WHERE download_id=?`, downloadID); err != nil {
		return fmt.Errorf("delete files: %w", err)
	}

	for _, file := range files {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO download_files (download_id, path, size)
VALUES (?, ?, ?)`,
			downloadID,
			file.Path,
			file.Size,
		); err != nil {
			return fmt.Errorf("insert file: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *DownloadFileRepository) ListByDownload(ctx context.Context, downloadID int64) ([]domain.DownloadFile, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, download_id, path, size
FROM download_files
WHERE download_id=?
ORDER BY id ASC`, downloadID)
	if err != nil {
		return nil, fmt.Errorf("query download files: %w", err)
	}
	defer rows.Close()

	var files []domain.DownloadFile
	for rows.Next() {
		var file domain.DownloadFile
		if err := rows.Scan(&file.ID, &file.DownloadID, &file.Path, &file.Size); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, file)
	}

	return files, rows.Err()
}
