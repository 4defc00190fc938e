package puller

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

const (
	archiveExt      = ".txt.gz"
	maxArchiveStem  = 100
	archiveTmpGlob  = ".archive-*.tmp"
	archiveDirPerm  = 0o755
	archiveFilePerm = 0o644
)

var nonAlnumRun = regexp.MustCompile(`[^A-Za-z0-9]+`)

// ArchiveFilename derives the archive name from an item's published date and
// title. The result depends only on its inputs unless either field is empty
// or has no alphanumerics, in which case it falls back to a name built from now.
func ArchiveFilename(published, title string, now time.Time) string {
	p := strings.Trim(nonAlnumRun.ReplaceAllString(published, "-"), "-")
	t := strings.Trim(nonAlnumRun.ReplaceAllString(title, "_"), "_")
	stem := p + "_" + t
	if p == "" || t == "" {
		now = now.UTC()
		stem = fmt.Sprintf("%s-%09d", now.Format("20060102T150405"), now.Nanosecond())
	}
	if len(stem) > maxArchiveStem {
		stem = strings.TrimRight(stem[:maxArchiveStem], "-_")
	}
	return stem + archiveExt
}

// ArchiveWriter stores gzip-compressed raw page bodies under
// {root}/{partition}/.
type ArchiveWriter struct {
	root string
}

func NewArchiveWriter(root string) *ArchiveWriter {
	return &ArchiveWriter{root: root}
}

func (w *ArchiveWriter) Root() string { return w.root }

// EnsureDir creates the partition's directory if needed and returns it.
func (w *ArchiveWriter) EnsureDir(partition string) (string, error) {
	if err := checkPartition(partition); err != nil {
		return "", err
	}
	dir := filepath.Join(w.root, partition)
	if err := os.MkdirAll(dir, archiveDirPerm); err != nil {
		return "", &ArchiveError{Path: dir, Err: err}
	}
	return dir, nil
}

// Write compresses body into the partition directory and returns the final
// path. An existing file with the derived name is left alone; the new file
// gets a unique suffix instead.
func (w *ArchiveWriter) Write(partition string, a *Article, body []byte, now time.Time) (string, error) {
	dir, err := w.EnsureDir(partition)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, archiveTmpGlob)
	if err != nil {
		return "", &ArchiveError{Path: dir, Err: err}
	}
	tmpPath := tmp.Name()
	if err := writeGzip(tmp, body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", &ArchiveError{Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", &ArchiveError{Path: tmpPath, Err: err}
	}
	if err := os.Chmod(tmpPath, archiveFilePerm); err != nil {
		_ = os.Remove(tmpPath)
		return "", &ArchiveError{Path: tmpPath, Err: err}
	}

	name := ArchiveFilename(a.Published, a.Title, now)
	dst := filepath.Join(dir, name)
	if _, err := os.Stat(dst); err == nil {
		stem := strings.TrimSuffix(name, archiveExt)
		dst = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, time.Now().UnixNano(), archiveExt))
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return "", &ArchiveError{Path: dst, Err: err}
	}
	return dst, nil
}

func writeGzip(f *os.File, body []byte) error {
	zw := gzip.NewWriter(f)
	if _, err := zw.Write(body); err != nil {
		_ = zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Sync()
}
