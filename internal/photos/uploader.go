package photos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/MarcoPoloResearchLab/pneus/backend/internal/tires"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultExtension = "jpg"

// ErrTooManyPhotos indicates a batch larger than tires.MaxPhotos.
var ErrTooManyPhotos = fmt.Errorf("photos: at most %d files per batch", tires.MaxPhotos)

// Upload is one selected file in a batch.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// UploaderConfig wires an Uploader.
type UploaderConfig struct {
	Store  Store
	Clock  func() time.Time
	Logger *zap.Logger
}

// Uploader stores a batch of tire photos in parallel.
type Uploader struct {
	store  Store
	clock  func() time.Time
	logger *zap.Logger
}

// NewUploader validates the configuration.
func NewUploader(cfg UploaderConfig) (*Uploader, error) {
	if cfg.Store == nil {
		return nil, errors.New("photos: store is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{store: cfg.Store, clock: clock, logger: logger}, nil
}

// ObjectKey builds pneus/{mesId}/{pneuId}/{unixMillis}_{idx}.{ext}.
func ObjectKey(ref tires.TireRef, at time.Time, index int, filename string) string {
	return fmt.Sprintf("pneus/%s/%s/%d_%d.%s", ref.MonthID, ref.TireID, at.UnixMilli(), index, extension(filename))
}

func extension(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return defaultExtension
	}
	for _, r := range ext {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return defaultExtension
		}
	}
	return ext
}

// UploadBatch stores every file in parallel and returns their URLs in input order.
// A single failure fails the whole batch.
func (u *Uploader) UploadBatch(ctx context.Context, ref tires.TireRef, uploads []Upload) ([]string, error) {
	if len(uploads) > tires.MaxPhotos {
		return nil, ErrTooManyPhotos
	}
	if len(uploads) == 0 {
		return []string{}, nil
	}

	urls := make([]string, len(uploads))
	group, groupCtx := errgroup.WithContext(ctx)
	for index, upload := range uploads {
		group.Go(func() error {
			body, err := upload.Open()
			if err != nil {
				return err
			}
			defer body.Close()
			url, err := u.store.Put(groupCtx, Object{
				Key:         ObjectKey(ref, u.clock(), index, upload.Filename),
				ContentType: upload.ContentType,
				Size:        upload.Size,
				Body:        body,
			})
			if err != nil {
				return err
			}
			urls[index] = url
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		u.logger.Error("photo batch failed",
			zap.String("mes_id", ref.MonthID.String()),
			zap.String("pneu_id", ref.TireID),
			zap.Int("files", len(uploads)),
			zap.Error(err))
		return nil, err
	}
	u.logger.Info("photo batch stored",
		zap.String("mes_id", ref.MonthID.String()),
		zap.String("pneu_id", ref.TireID),
		zap.Int("files", len(uploads)))
	return urls, nil
}
