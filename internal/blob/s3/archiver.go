package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"
	defaultBatchSize = 5000
	// multipartThreshold switches uploads to the multipart manager.
	multipartThreshold = 8 * 1024 * 1024
)

// ArchiverConfig tunes the settled-bet export.
type ArchiverConfig struct {
	Prefix    string
	BatchSize int
}

// Archiver implements domain.Archiver. It copies settled bets older than a
// cutoff from the database to JSONL objects and deletes each batch from the
// database only after its upload succeeded.
type Archiver struct {
	writer domain.BlobWriter
	bets   domain.SettledBetStore
	audit  domain.AuditStore
	cfg    ArchiverConfig
	logger *slog.Logger
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, bets domain.SettledBetStore, audit domain.AuditStore, cfg ArchiverConfig, logger *slog.Logger) *Archiver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "settled_bets"
	}
	return &Archiver{
		writer: writer,
		bets:   bets,
		audit:  audit,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveSettledBets exports every bet settled before the cutoff and returns
// the number of rows moved.
//
// Batches are read oldest first. After a full batch only rows strictly older
// than the batch's newest settlement are deleted, so rows sharing that
// timestamp are re-read and exported again in the next object rather than
// lost. Duplicates in the archive are possible, gaps are not.
func (a *Archiver) ArchiveSettledBets(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for part := 0; ; part++ {
		batch, err := a.bets.ListBefore(ctx, before, a.cfg.BatchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive query: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		path := archivePath(a.cfg.Prefix, before, part)
		if err := a.upload(ctx, path, batch); err != nil {
			return total, err
		}

		full := len(batch) == a.cfg.BatchSize
		cutoff := before
		if full {
			cutoff = settledAt(batch[len(batch)-1])
			if !cutoff.After(settledAt(batch[0])) {
				return total, fmt.Errorf("s3blob: %d bets share settlement time %s, raise the batch size",
					len(batch), cutoff.Format(time.RFC3339Nano))
			}
		}

		deleted, err := a.bets.DeleteBefore(ctx, cutoff)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive delete: %w", err)
		}
		total += deleted

		a.logger.InfoContext(ctx, "archived settled bets",
			slog.String("path", path),
			slog.Int("exported", len(batch)),
			slog.Int64("deleted", deleted),
		)
		if a.audit != nil {
			if err := a.audit.Log(ctx, domain.AuditArchiveRun, map[string]any{
				"path":     path,
				"exported": len(batch),
				"deleted":  deleted,
				"before":   before.Format(time.RFC3339),
			}); err != nil {
				a.logger.WarnContext(ctx, "archive audit failed", slog.String("error", err.Error()))
			}
		}

		if !full {
			break
		}
	}
	return total, nil
}

func (a *Archiver) upload(ctx context.Context, path string, bets []domain.Bet) error {
	buf, err := marshalJSONL(bets)
	if err != nil {
		return fmt.Errorf("s3blob: archive marshal: %w", err)
	}
	if len(buf) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive upload: %w", err)
	}
	return nil
}

func settledAt(b domain.Bet) time.Time {
	if b.SettledAt == nil {
		return b.PlacedAt
	}
	return *b.SettledAt
}

// archivePath partitions exports by the cutoff day:
//
//	settled_bets/2026-10-15/20261015T000000Z-000.jsonl
func archivePath(prefix string, before time.Time, part int) string {
	before = before.UTC()
	return fmt.Sprintf("%s/%s/%s-%03d.jsonl", prefix, before.Format("2006-01-02"), before.Format("20060102T150405Z"), part)
}

// marshalJSONL encodes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
