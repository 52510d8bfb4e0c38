// Package fetch saves generated images from history into a local directory.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path"
	"strings"

	"imagegen/internal/ledger"
	"imagegen/internal/safepath"
)

// ErrNotResolved is returned for an entry without an output reference.
var ErrNotResolved = errors.New("entry has no output image yet")

// Downloader streams an asset into w. *inference.Client satisfies it.
type Downloader interface {
	Download(ctx context.Context, assetURL string, w io.Writer) (int64, string, error)
}

type Fetcher struct {
	dl   Downloader
	root string
}

func New(dl Downloader, root string) *Fetcher {
	return &Fetcher{dl: dl, root: root}
}

// Result describes a saved file.
type Result struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

// Save downloads rec's output into the root directory. The file is named
// after the job id, or the url's base name for entries without one.
func (f *Fetcher) Save(ctx context.Context, rec ledger.PromptRecord) (Result, error) {
	if !rec.Resolved() {
		return Result{}, ErrNotResolved
	}
	if err := os.MkdirAll(f.root, 0o755); err != nil {
		return Result{}, fmt.Errorf("create download dir: %w", err)
	}

	tmp, err := os.CreateTemp(f.root, ".download-*")
	if err != nil {
		return Result{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, contentType, err := f.dl.Download(ctx, rec.OutputRef, tmp)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return Result{}, err
	}

	target, err := safepath.Join(f.root, FileName(rec, contentType))
	if err != nil {
		return Result{}, err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return Result{}, fmt.Errorf("save %s: %w", target, err)
	}
	slog.Info("fetch: saved output", "path", target, "bytes", n)
	return Result{Path: target, Bytes: n}, nil
}

// FileName picks a file name for rec: job id plus an extension from the
// url or content type.
func FileName(rec ledger.PromptRecord, contentType string) string {
	var base, ext string
	if u, err := url.Parse(rec.OutputRef); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
		base = strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
	}
	if rec.JobID != "" {
		base = rec.JobID
	}
	if ext == "" && contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
				ext = exts[0]
			}
		}
	}
	if ext == "" {
		ext = ".png"
	}
	return safepath.SanitizeName(base) + ext
}
