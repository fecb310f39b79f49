package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

type fakeArchiver struct {
	before []time.Time
	n      int64
	err    error
}

func (a *fakeArchiver) ArchiveSettledBets(_ context.Context, before time.Time) (int64, error) {
	a.before = append(a.before, before)
	return a.n, a.err
}

type fakeLocks struct {
	err      error
	released int
}

func (l *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	return func() { l.released++ }, nil
}

func newTestArchiveService(a domain.Archiver, locks domain.LockManager) *ArchiveService {
	s := NewArchiveService(a, locks, nil, nil,
		ArchiveConfig{Interval: time.Hour, Retention: 30 * 24 * time.Hour, Prefix: "settled_bets"}, discardLogger())
	s.now = func() time.Time { return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestArchiveRunOnceUsesRetentionCutoff(t *testing.T) {
	arch := &fakeArchiver{n: 12}
	locks := &fakeLocks{}
	s := newTestArchiveService(arch, locks)

	n, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 12 {
		t.Errorf("n = %d, want 12", n)
	}
	want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if len(arch.before) != 1 || !arch.before[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", arch.before, want)
	}
	if locks.released != 1 {
		t.Errorf("lock released %d times, want 1", locks.released)
	}
}

func TestArchiveRunOnceSkipsWhenLockHeld(t *testing.T) {
	arch := &fakeArchiver{}
	s := newTestArchiveService(arch, &fakeLocks{err: domain.ErrLockHeld})

	n, err := s.RunOnce(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("RunOnce = %d, %v; want 0, nil", n, err)
	}
	if len(arch.before) != 0 {
		t.Error("archiver ran while lock was held")
	}
}

func TestArchiveRunOncePropagatesErrors(t *testing.T) {
	s := newTestArchiveService(&fakeArchiver{err: errors.New("s3 down")}, nil)
	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	s = newTestArchiveService(&fakeArchiver{}, &fakeLocks{err: errors.New("redis down")})
	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
}

func TestArchiveListWithoutReader(t *testing.T) {
	s := newTestArchiveService(&fakeArchiver{}, nil)
	if _, err := s.List(context.Background()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("List err = %v, want ErrNotFound", err)
	}
}

type memReader struct {
	objects map[string]string
	gets    []string
}

func (r *memReader) Get(_ context.Context, path string) (io.ReadCloser, error) {
	r.gets = append(r.gets, path)
	body, ok := r.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (r *memReader) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for path, body := range r.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, domain.BlobInfo{Path: path, Size: int64(len(body))})
		}
	}
	return out, nil
}

func TestArchiveOpen(t *testing.T) {
	const path = "settled_bets/2026-03-01/20260301T000000Z-000.jsonl"
	reader := &memReader{objects: map[string]string{path: `{"id":"b1"}` + "\n"}}
	s := NewArchiveService(&fakeArchiver{}, nil, reader, nil,
		ArchiveConfig{Prefix: "settled_bets"}, discardLogger())

	body, err := s.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(body)
	body.Close()
	if !strings.Contains(string(data), `"b1"`) {
		t.Errorf("body = %q, want bet b1", data)
	}

	if _, err := s.Open(context.Background(), "settled_bets/2026-03-02/missing.jsonl"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing object err = %v, want ErrNotFound", err)
	}

	for _, bad := range []string{"other/x.jsonl", "settled_bets/../secrets.jsonl", "settled_bets/x.txt"} {
		if _, err := s.Open(context.Background(), bad); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Open(%q) err = %v, want ErrNotFound", bad, err)
		}
	}
	if len(reader.gets) != 2 {
		t.Errorf("reader.Get calls = %d, want 2", len(reader.gets))
	}
}
