package domain

import (
	"errors"
	"fmt"
)

type FailureKind string

const (
	FailureEmptyInput          FailureKind = "empty_input"
	FailureInvalidMagnetFormat FailureKind = "invalid_magnet_format"
	FailureInvalidMagnetHandle FailureKind = "invalid_magnet_handle"
	FailureEngineUnavailable   FailureKind = "engine_unavailable"
	FailureMetadataTimeout     FailureKind = "metadata_timeout"
	FailureNoFilesInTorrent    FailureKind = "no_files_in_torrent"
	FailureFileTooLarge        FailureKind = "file_too_large"
	FailureDownloadTimeout     FailureKind = "download_timeout"
	FailureStalledDownload     FailureKind = "stalled_download"
	FailureEngineError         FailureKind = "engine_error"
	FailureFileNotFound        FailureKind = "file_not_found"
	FailureUnexpected          FailureKind = "unexpected_error"
)

// genericFailureMessage is what callers see when an error carries no
// user-safe message of its own.
const genericFailureMessage = "An unexpected error occurred. Please try again later."

// Failure is the terminal error outcome of a download request. Message is
// safe to show to an end user; internal detail stays in the logs.
type Failure struct {
	Kind    FailureKind
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Failf builds a Failure with a formatted user-facing message.
func Failf(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsFailure normalizes any error into a Failure. Errors without a kind
// become FailureUnexpected with a generic message so internal detail never
// leaks to the user.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: FailureUnexpected, Message: genericFailureMessage}
}

// Success is the terminal success outcome of a download request: where the
// artifact landed, how big it is, and the filename to present.
type Success struct {
	Path string
	Size int64
	Name string
}
