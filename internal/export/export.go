// Package export writes the guest list as CSV to S3 and returns a short-lived download link.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/psg2/level-30-birthday/internal/models"
	"github.com/psg2/level-30-birthday/pkg/storage"
)

const contentType = "text/csv; charset=utf-8"

var header = []string{
	"id", "name", "email", "status", "plus_ones", "plus_one_count",
	"food_restrictions", "message", "trophies", "created_at", "updated_at",
}

// Bucket stores the export. storage.S3 implements it.
type Bucket interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) error
	PresignDownload(ctx context.Context, key string) (string, error)
	PresignExpire() time.Duration
}

// Result describes a finished export.
type Result struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	Rows      int       `json:"rows"`
}

// Exporter uploads guest list snapshots.
type Exporter struct {
	bucket Bucket
	logger *zap.Logger
	now    func() time.Time
}

// NewExporter creates an exporter.
func NewExporter(bucket Bucket, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{bucket: bucket, logger: logger, now: time.Now}
}

// Export uploads guests as CSV and presigns the object.
func (e *Exporter) Export(ctx context.Context, guests []*models.Rsvp) (*Result, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, guests); err != nil {
		return nil, err
	}
	now := e.now()
	key := storage.ExportKey(now)
	if err := e.bucket.Upload(ctx, key, contentType, &buf); err != nil {
		return nil, err
	}
	url, err := e.bucket.PresignDownload(ctx, key)
	if err != nil {
		return nil, err
	}
	e.logger.Info("guest list exported", zap.String("key", key), zap.Int("rows", len(guests)))
	return &Result{Key: key, URL: url, ExpiresAt: now.Add(e.bucket.PresignExpire()).UTC(), Rows: len(guests)}, nil
}

// WriteCSV writes one row per guest with unmasked emails.
func WriteCSV(w io.Writer, guests []*models.Rsvp) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, g := range guests {
		plusOnes := make([]string, 0, len(g.PlusOnes))
		for _, p := range g.PlusOnes {
			if p.Email != "" {
				plusOnes = append(plusOnes, p.Name+" <"+p.Email+">")
			} else {
				plusOnes = append(plusOnes, p.Name)
			}
		}
		row := []string{
			g.ID,
			g.Name,
			g.Email,
			string(g.Status),
			strings.Join(plusOnes, "; "),
			strconv.Itoa(len(g.PlusOnes)),
			g.FoodRestrictions,
			g.Message,
			strings.Join(g.Trophies, " "),
			g.CreatedAt.UTC().Format(time.RFC3339),
			g.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", g.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
