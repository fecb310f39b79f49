package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/flashbet/internal/domain"
	"github.com/alanyoungcy/flashbet/internal/notify"
)

const archiveLockKey = "archive:settled_bets"

// ArchiveConfig schedules settled-bet archival.
type ArchiveConfig struct {
	Interval  time.Duration
	Retention time.Duration
	Prefix    string
}

// ArchiveService periodically moves settled bets older than the retention
// window to object storage. A distributed lock keeps concurrent replicas from
// archiving the same rows.
type ArchiveService struct {
	archiver domain.Archiver
	locks    domain.LockManager
	reader   domain.BlobReader
	notifier *notify.Notifier
	cfg      ArchiveConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewArchiveService creates an ArchiveService. locks, reader and notifier may
// be nil.
func NewArchiveService(
	archiver domain.Archiver,
	locks domain.LockManager,
	reader domain.BlobReader,
	notifier *notify.Notifier,
	cfg ArchiveConfig,
	logger *slog.Logger,
) *ArchiveService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &ArchiveService{
		archiver: archiver,
		locks:    locks,
		reader:   reader,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "archive_service")),
		now:      time.Now,
	}
}

// Run archives once at start and then every interval until ctx is cancelled.
func (s *ArchiveService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			if nerr := s.notifier.Notify(ctx, notify.EventError, "Archive failed", err.Error()); nerr != nil {
				s.logger.WarnContext(ctx, "notification failed", slog.String("error", nerr.Error()))
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce archives everything settled before now minus the retention. It
// returns zero without error when another instance holds the lock.
func (s *ArchiveService) RunOnce(ctx context.Context) (int64, error) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, archiveLockKey, s.cfg.Interval)
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.DebugContext(ctx, "archive lock held elsewhere, skipping")
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("archive_service: acquire lock: %w", err)
		}
		defer unlock()
	}

	before := s.now().UTC().Add(-s.cfg.Retention)
	n, err := s.archiver.ArchiveSettledBets(ctx, before)
	if err != nil {
		return n, fmt.Errorf("archive_service: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "settled bets archived",
			slog.Int64("count", n),
			slog.Time("before", before),
		)
		if err := s.notifier.Notify(ctx, notify.EventArchive, "Archive complete",
			fmt.Sprintf("archived %d settled bets older than %s", n, before.Format(time.RFC3339))); err != nil {
			s.logger.WarnContext(ctx, "notification failed", slog.String("error", err.Error()))
		}
	}
	return n, nil
}

// List returns archived objects, or ErrNotFound when no blob reader is
// configured.
func (s *ArchiveService) List(ctx context.Context) ([]domain.BlobInfo, error) {
	if s.reader == nil {
		return nil, fmt.Errorf("archive_service: %w: archive storage not configured", domain.ErrNotFound)
	}
	infos, err := s.reader.List(ctx, s.cfg.Prefix)
	if err != nil {
		return nil, fmt.Errorf("archive_service: list: %w", err)
	}
	return infos, nil
}

// Open returns the body of one archived file. Paths outside the archive
// prefix are reported as not found.
func (s *ArchiveService) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if s.reader == nil {
		return nil, fmt.Errorf("archive_service: %w: archive storage not configured", domain.ErrNotFound)
	}
	if !strings.HasPrefix(path, s.cfg.Prefix+"/") || !strings.HasSuffix(path, ".jsonl") || strings.Contains(path, "..") {
		return nil, fmt.Errorf("archive_service: open %s: %w", path, domain.ErrNotFound)
	}
	body, err := s.reader.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("archive_service: open: %w", err)
	}
	return body, nil
}
