package puller

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateLink = errors.New("link already recorded")
	ErrMalformedFeed = errors.New("malformed feed")
)

// ConfigError is a bad category list entry or config value. It aborts the run.
type ConfigError struct {
	Line   int
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("config line %d: %s: %s", e.Line, e.Field, e.Reason)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

type FetchErrorKind string

const (
	FetchErrorNetwork    FetchErrorKind = "network"
	FetchErrorHTTPStatus FetchErrorKind = "http_status"
	FetchErrorTimeout    FetchErrorKind = "timeout"
	FetchErrorTooLarge   FetchErrorKind = "too_large"
)

type FetchError struct {
	Kind   FetchErrorKind
	Link   string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchErrorHTTPStatus {
		return fmt.Sprintf("fetch %s: http status %d", e.Link, e.Status)
	}
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.Link, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Link, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StorageError is a failed write against the article store.
type StorageError struct {
	Op       string
	Category string
	Link     string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s category=%q link=%q: %v", e.Op, e.Category, e.Link, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsSystemic reports whether err points at the store itself (full disk,
// corruption, read-only file) rather than at a single row. Such errors abort
// the run instead of failing one article.
func IsSystemic(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"database or disk is full",
		"disk i/o error",
		"database disk image is malformed",
		"file is not a database",
		"attempt to write a readonly database",
		"unable to open database file",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

type ArchiveError struct {
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive %s: %v", e.Path, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }
