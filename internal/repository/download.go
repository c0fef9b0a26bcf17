package repository

import (
	"context"

	"mator/internal/domain"
)

// DownloadRepository persists download request records.
type DownloadRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, d *domain.Download) (int64, error)
	Finish(ctx context.Context, d *domain.Download) error
	FailDangling(ctx context.Context, message string) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Download, error)
}

// DownloadFileRepository records the files a torrent declared.
type DownloadFileRepository interface {
	Init(ctx context.Context) error
	ReplaceForDownload(ctx context.Context, downloadID int64, files []domain.DownloadFile) error
	ListByDownload(ctx context.Context, downloadID int64) ([]domain.DownloadFile, error)
}
