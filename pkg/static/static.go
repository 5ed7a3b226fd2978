// Package static serves files from a Disk as fall-through middleware.
//
// A request that does not name a file on the disk is handed to the next
// handler untouched, so several static roots can be stacked and earlier ones
// win:
//
//	r.Use(static.Middleware(static.Local("public")))
//	r.Use(static.Middleware(static.Local("assets")))
//
// Two disk drivers are available:
//   - local  a directory on the local filesystem
//   - s3     an S3-compatible bucket, addressed as s3://bucket/prefix
package static

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/shashiranjanraj/serverkit/pkg/logger"
)

// IndexFile is served for requests that name a directory.
const IndexFile = "index.html"

// ErrNotExist is returned by Disk.Open for names that are not files.
var ErrNotExist = fs.ErrNotExist

// File is an opened static file.
type File struct {
	Content     io.ReadSeeker
	ModTime     time.Time
	ContentType string
	ETag        string
	close       func() error
}

// Close releases the file.
func (f *File) Close() error {
	if f.close == nil {
		return nil
	}
	return f.close()
}

// Disk is the storage a static root reads from.
type Disk interface {
	// Open returns the file at the slash-separated name. Names ending in "/"
	// resolve to the directory's index file.
	Open(ctx context.Context, name string) (*File, error)
	// String describes the disk for logs.
	String() string
}

// New picks the driver for root: s3://bucket/prefix selects the S3 disk,
// anything else is a local directory.
func New(ctx context.Context, root string) (Disk, error) {
	if strings.HasPrefix(root, "s3://") {
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(root, "s3://"), "/")
		return NewS3(ctx, bucket, prefix)
	}
	return Local(root), nil
}

// Middleware serves GET and HEAD requests from disk and falls through on
// anything it cannot serve.
func Middleware(disk Disk) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			name, ok := cleanName(r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			f, err := disk.Open(r.Context(), name)
			if err != nil {
				if !errors.Is(err, ErrNotExist) {
					logger.WithCtx(r.Context()).Warn("static: open failed", "disk", disk.String(), "path", name, "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			defer f.Close()

			if f.ContentType == "" {
				f.ContentType = detectType(name, f.Content)
			}
			w.Header().Set("Content-Type", f.ContentType)
			if f.ETag != "" {
				w.Header().Set("ETag", f.ETag)
			}
			http.ServeContent(w, r, path.Base(name), f.ModTime, f.Content)
		})
	}
}

// cleanName turns a URL path into a disk name, rejecting dot-dot segments
// and NUL bytes.
func cleanName(urlPath string) (string, bool) {
	if strings.Contains(urlPath, "\x00") {
		return "", false
	}
	for _, seg := range strings.Split(urlPath, "/") {
		if seg == ".." {
			return "", false
		}
	}
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if strings.HasSuffix(urlPath, "/") && name != "" {
		name += "/"
	}
	if name == "." || name == "" {
		name = "/"
	}
	return name, true
}

func indexName(name string) string {
	if name == "/" {
		return IndexFile
	}
	if strings.HasSuffix(name, "/") {
		return name + IndexFile
	}
	return name
}

// detectType uses the extension, then sniffs the content.
func detectType(name string, content io.ReadSeeker) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	mt, err := mimetype.DetectReader(content)
	if _, serr := content.Seek(0, io.SeekStart); serr != nil || err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

func memFile(b []byte, mod time.Time, contentType, etag string) *File {
	return &File{Content: bytes.NewReader(b), ModTime: mod, ContentType: contentType, ETag: etag}
}
