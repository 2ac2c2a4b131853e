package crawler

import (
	"errors"
	"fmt"
)

// ErrQueueClosed is returned by a queue once it is closed and empty.
var ErrQueueClosed = errors.New("queue closed")

// FetchError reports a failed page or image fetch.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MalformedDateError reports an alt text or date token that does not parse.
type MalformedDateError struct {
	Input  string
	Reason string
}

func (e *MalformedDateError) Error() string {
	return fmt.Sprintf("malformed date %q: %s", e.Input, e.Reason)
}

// FilesystemError reports a directory or file operation that failed.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// ArchiveUnreachableError is fatal: the archive root could not be fetched.
type ArchiveUnreachableError struct {
	URL string
	Err error
}

func (e *ArchiveUnreachableError) Error() string {
	return fmt.Sprintf("archive root %s unreachable: %v", e.URL, e.Err)
}

func (e *ArchiveUnreachableError) Unwrap() error { return e.Err }
