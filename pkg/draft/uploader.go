package draft

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"themeforge/pkg/config"
)

const svgMediaType = "image/svg+xml"

var (
	ErrNotImage     = errors.New("file is not an image")
	ErrFileTooLarge = errors.New("file exceeds the size limit")
)

type Limits struct {
	MaxFiles       int
	MaxFileSize    int64
	MaxSVGFileSize int64
}

func LimitsFromConfig(cfg config.LimitsConfig) Limits {
	return Limits{
		MaxFiles:       cfg.MaxImageFiles,
		MaxFileSize:    cfg.MaxImageFileSize,
		MaxSVGFileSize: cfg.MaxSVGFileSize,
	}
}

// Rejection names a file that was skipped and why.
type Rejection struct {
	Path string
	Err  error
}

type UploadResult struct {
	// Added counts the images that finished and are now in the tracker.
	Added    int
	Rejected []Rejection
	// Truncated is set when more files were offered than there was room for;
	// the extra files were ignored.
	Truncated bool
}

// Uploader reads local image files into data URLs and feeds them to an
// Images tracker.
type Uploader struct {
	limits Limits
	images *Images
	log    *slog.Logger
}

func NewUploader(limits Limits, images *Images) *Uploader {
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = config.DefaultMaxImageFiles
	}
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = config.DefaultMaxImageFileSize
	}
	if limits.MaxSVGFileSize <= 0 {
		limits.MaxSVGFileSize = config.DefaultMaxSVGFileSize
	}
	return &Uploader{limits: limits, images: images, log: slog.Default().With("component", "draft.upload")}
}

type pendingFile struct {
	path      string
	mediaType string
	tempURL   string
}

// Upload validates paths against the limits, registers a placeholder for each
// accepted file and reads them concurrently. Rejected files are reported in
// the result rather than failing the batch; the returned error is reserved
// for ctx ending mid-upload.
func (u *Uploader) Upload(ctx context.Context, paths []string) (UploadResult, error) {
	var result UploadResult
	if len(paths) == 0 {
		return result, nil
	}

	room := u.limits.MaxFiles - u.images.Len()
	if len(paths) > room {
		result.Truncated = true
		u.log.Info("Image upload limit reached", "max_files", u.limits.MaxFiles)
		if room <= 0 {
			return result, nil
		}
		paths = paths[:room]
	}

	var pending []pendingFile
	for _, path := range paths {
		mediaType, err := u.validate(path)
		if err != nil {
			result.Rejected = append(result.Rejected, Rejection{Path: path, Err: err})
			continue
		}
		pending = append(pending, pendingFile{path: path, mediaType: mediaType, tempURL: "pending:" + uuid.NewString()})
	}
	if len(pending) == 0 {
		return result, nil
	}

	tempURLs := make([]string, 0, len(pending))
	for _, p := range pending {
		tempURLs = append(tempURLs, p.tempURL)
	}
	u.images.Add(tempURLs...)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				u.images.Discard(p.tempURL)
				return err
			}

			dataURL, err := readDataURL(p.path, p.mediaType)
			if err != nil {
				u.images.Discard(p.tempURL)
				mu.Lock()
				result.Rejected = append(result.Rejected, Rejection{Path: p.path, Err: err})
				mu.Unlock()
				return nil
			}

			ok, err := u.images.Complete(gctx, p.tempURL, dataURL)
			if err != nil {
				u.log.Warn("Failed to sync image draft", "path", p.path, "error", err)
			}
			if ok {
				mu.Lock()
				result.Added++
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("upload images: %w", err)
	}
	return result, nil
}

func (u *Uploader) validate(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s: %w", path, ErrNotImage)
	}

	mediaType, err := detectMediaType(path)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%s (%s): %w", filepath.Base(path), mediaType, ErrNotImage)
	}

	limit := u.limits.MaxFileSize
	if mediaType == svgMediaType {
		limit = u.limits.MaxSVGFileSize
	}
	if info.Size() > limit {
		return "", fmt.Errorf("image %q exceeds the %gMB size limit: %w", filepath.Base(path), float64(limit)/1024/1024, ErrFileTooLarge)
	}
	return mediaType, nil
}

// detectMediaType trusts a known image extension and sniffs the content
// otherwise.
func detectMediaType(path string) (string, error) {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
		mediaType, _, err := mime.ParseMediaType(byExt)
		if err == nil {
			return mediaType, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	mediaType, _, err := mime.ParseMediaType(http.DetectContentType(head[:n]))
	if err != nil {
		return "application/octet-stream", nil
	}
	return mediaType, nil
}

func readDataURL(path, mediaType string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}
