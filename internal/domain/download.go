package domain

import "time"

type DownloadStatus string

const (
	DownloadStatusRunning   DownloadStatus = "running"
	DownloadStatusSucceeded DownloadStatus = "succeeded"
	DownloadStatusFailed    DownloadStatus = "failed"
)

// Download records one magnet request from submission to its terminal
// outcome.
type Download struct {
	ID              int64
	RequestID       string
	MagnetURI       string
	InfoHash        string
	Status          DownloadStatus
	FailureKind     string
	Message         string
	TorrentName     string
	FilePath        string
	FileName        string
	FileSize        int64
	TotalSize       int64
	ArchiveLocation string
	DurationMS      int64
	CreatedAt       time.Time
	FinishedAt      *time.Time
	Files           []DownloadFile
}

// DownloadFile captures an individual file declared by a torrent's
// metadata.
type DownloadFile struct {
	ID         int64
	DownloadID int64
	Path       string
	Size       int64
}
