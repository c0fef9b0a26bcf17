package service

import (
	"context"
	"errors"

	"mator/internal/domain"
	"mator/internal/repository"
)

// HistoryService coordinates download history persistence backed by
// repositories.
type HistoryService interface {
	Begin(ctx context.Context, requestID, magnetURI, infoHash string) (*domain.Download, error)
	Finish(ctx context.Context, d *domain.Download) error
	RecordFiles(ctx context.Context, downloadID int64, files []domain.DownloadFile) error
	ListRecent(ctx context.Context, limit int) ([]domain.Download, error)
	FailDangling(ctx context.Context) (int64, error)
}

type historyService struct {
	downloads repository.DownloadRepository
	files     repository.DownloadFileRepository
}

func NewHistoryService(downloads repository.DownloadRepository, files repository.DownloadFileRepository) HistoryService {
	return &historyService{
		downloads: downloads,
		files:     files,
	}
}

// Begin records a request as running before any engine work starts.
func (s *historyService) Begin(ctx context.Context, requestID, magnetURI, infoHash string) (*domain.Download, error) {
	if requestID == "" {
		return nil, errors.New("request ID is required")
	}
	if magnetURI == "" {
		return nil, errors.New("magnet URI is required")
	}

	d := &domain.Download{
		RequestID: requestID,
		MagnetURI: magnetURI,
		InfoHash:  infoHash,
		Status:    domain.DownloadStatusRunning,
	}
	if _, err := s.downloads.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *historyService) Finish(ctx context.Context, d *domain.Download) error {
	if d == nil || d.ID == 0 {
		return errors.New("download record is required")
	}
	return s.downloads.Finish(ctx, d)
}

func (s *historyService) RecordFiles(ctx context.Context, downloadID int64, files []domain.DownloadFile) error {
	return s.files.ReplaceForDownload(ctx, downloadID, files)
}

func (s *historyService) ListRecent(ctx context.Context, limit int) ([]domain.Download, error) {
	downloads, err := s.downloads.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i := range downloads {
		files, err := s.files.ListByDownload(ctx, downloads[i].ID)
		if err != nil {
			return nil, err
		}
		downloads[i].Files = files
	}
	return downloads, nil
}

// FailDangling settles rows left running by a previous process. Run once
// at startup, before any new request is accepted.
func (s *historyService) FailDangling(ctx context.Context) (int64, error) {
	return s.downloads.FailDangling(ctx, "The server restarted while this download was in progress.")
}
