package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"mator/internal/domain"
	"mator/internal/repository"
)

func newTestRepos(t *testing.T) (repository.DownloadRepository, repository.DownloadFileRepository) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "mator.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	downloads := NewDownloadRepository(db)
	files := NewDownloadFileRepository(db)
	ctx := context.Background()
	if err := downloads.Init(ctx); err != nil {
		t.Fatalf("init downloads table: %v", err)
	}
	if err := files.Init(ctx); err != nil {
		t.Fatalf("init download_files table: %v", err)
	}
	return downloads, files
}

func newRunningDownload(requestID string) *domain.Download {
	return &domain.Download{
		RequestID: requestID,
		MagnetURI: "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567",
		InfoHash:  "0123456789abcdef0123456789abcdef01234567",
		Status:    domain.DownloadStatusRunning,
	}
}

func TestDownloadCreateFinishRoundTrip(t *testing.T) {
	downloads, _ := newTestRepos(t)
	ctx := context.Background()

	d := newRunningDownload("req-1")
	id, err := downloads.Create(ctx, d)
	if err != nil {
		t.Fatalf("create download: %v", err)
	}
	if id == 0 || d.ID != id {
		t.Fatalf("Expected the record to carry its new id, got id=%d d.ID=%d", id, d.ID)
	}
	if d.CreatedAt.IsZero() {
		t.Fatal("Expected CreatedAt to be stamped on create")
	}

	d.Status = domain.DownloadStatusSucceeded
	d.TorrentName = "example torrent"
	d.FilePath = "/data/downloads/example.bin"
	d.FileName = "example.bin"
	d.FileSize = 4096
	d.TotalSize = 4096
	d.ArchiveLocation = "s3://bucket/archives/example.bin"
	d.DurationMS = 1500
	if err := downloads.Finish(ctx, d); err != nil {
		t.Fatalf("finish download: %v", err)
	}
	if d.FinishedAt == nil {
		t.Fatal("Expected FinishedAt to be stamped on finish")
	}

	rows, err := downloads.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list downloads: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	got := rows[0]
	if got.RequestID != "req-1" || got.InfoHash != d.InfoHash || got.MagnetURI != d.MagnetURI {
		t.Fatalf("Expected identifying fields to round trip, got %+v", got)
	}
	if got.Status != domain.DownloadStatusSucceeded {
		t.Fatalf("Expected status succeeded, got %s", got.Status)
	}
	if got.TorrentName != d.TorrentName || got.FileName != d.FileName || got.FilePath != d.FilePath {
		t.Fatalf("Expected artifact fields to round trip, got %+v", got)
	}
	if got.FileSize != 4096 || got.TotalSize != 4096 || got.DurationMS != 1500 {
		t.Fatalf("Expected numeric fields to round trip, got %+v", got)
	}
	if got.ArchiveLocation != d.ArchiveLocation {
		t.Fatalf("Expected archive location %q, got %q", d.ArchiveLocation, got.ArchiveLocation)
	}
	if got.CreatedAt.IsZero() || got.FinishedAt == nil {
		t.Fatalf("Expected timestamps to round trip, got created=%v finished=%v", got.CreatedAt, got.FinishedAt)
	}
}

func TestDownloadCreateRejectsDuplicateRequestID(t *testing.T) {
	downloads, _ := newTestRepos(t)
	ctx := context.Background()

	if _, err := downloads.Create(ctx, newRunningDownload("req-dup")); err != nil {
		t.Fatalf("create download: %v", err)
	}
	if _, err := downloads.Create(ctx, newRunningDownload("req-dup")); err == nil {
		t.Fatal("Expected a duplicate request id to be rejected")
	}
}

func TestDownloadListRecentOrdersNewestFirst(t *testing.T) {
	downloads, _ := newTestRepos(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, err := downloads.Create(ctx, newRunningDownload(fmt.Sprintf("req-%d", i))); err != nil {
			t.Fatalf("create download %d: %v", i, err)
		}
	}

	rows, err := downloads.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list downloads: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected the limit to apply, got %d rows", len(rows))
	}
	if rows[0].RequestID != "req-3" || rows[1].RequestID != "req-2" {
		t.Fatalf("Expected newest first, got %s then %s", rows[0].RequestID, rows[1].RequestID)
	}

	rows, err = downloads.ListRecent(ctx, 0)
	if err != nil {
		t.Fatalf("list downloads with default limit: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected a non-positive limit to fall back to the default, got %d rows", len(rows))
	}
}

func TestDownloadFailDangling(t *testing.T) {
	downloads, _ := newTestRepos(t)
	ctx := context.Background()

	stuck := newRunningDownload("req-stuck")
	if _, err := downloads.Create(ctx, stuck); err != nil {
		t.Fatalf("create stuck download: %v", err)
	}
	done := newRunningDownload("req-done")
	if _, err := downloads.Create(ctx, done); err != nil {
		t.Fatalf("create finished download: %v", err)
	}
	done.Status = domain.DownloadStatusSucceeded
	if err := downloads.Finish(ctx, done); err != nil {
		t.Fatalf("finish download: %v", err)
	}

	affected, err := downloads.FailDangling(ctx, "The server restarted while this download was in progress.")
	if err != nil {
		t.Fatalf("fail dangling: %v", err)
	}
	if affected != 1 {
		t.Fatalf("Expected 1 dangling row, got %d", affected)
	}

	rows, err := downloads.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list downloads: %v", err)
	}
	for _, row := range rows {
		switch row.RequestID {
		case "req-stuck":
			if row.Status != domain.DownloadStatusFailed {
				t.Fatalf("Expected the stuck row to be failed, got %s", row.Status)
			}
			if row.FailureKind != string(domain.FailureUnexpected) {
				t.Fatalf("Expected failure kind %s, got %q", domain.FailureUnexpected, row.FailureKind)
			}
			if row.Message == "" || row.FinishedAt == nil {
				t.Fatalf("Expected the stuck row to be settled, got %+v", row)
			}
		case "req-done":
			if row.Status != domain.DownloadStatusSucceeded {
				t.Fatalf("Expected the finished row to be untouched, got %s", row.Status)
			}
		}
	}

	affected, err = downloads.FailDangling(ctx, "again")
	if err != nil {
		t.Fatalf("second fail dangling: %v", err)
	}
	if affected != 0 {
		t.Fatalf("Expected no rows on a second pass, got %d", affected)
	}
}
