// Package snapshot persists the in-memory session set to a single JSON
// file. Saves are debounced so bursts of state changes cost one write,
// and the file is replaced atomically via temp-and-rename so a crash
// mid-write never leaves a torn snapshot behind.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/councild/councild/internal/events"
	"github.com/councild/councild/internal/session"
)

// DumpFunc produces the serialized session set and the number of
// sessions in it. The engine supplies one that marshals under its own
// lock so the snapshot is always internally consistent.
type DumpFunc func() ([]byte, int, error)

// Saver debounces and writes snapshots. Snapshot failures are logged
// and reported on the bus but never propagate: losing a snapshot is
// recoverable, crashing the debate is not.
type Saver struct {
	path     string
	debounce time.Duration
	dump     DumpFunc
	bus      *events.Bus
	log      *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewSaver creates a saver writing to path. A nil logger falls back to
// slog.Default; the bus may be nil.
func NewSaver(path string, debounce time.Duration, dump DumpFunc, bus *events.Bus, log *slog.Logger) *Saver {
	if log == nil {
		log = slog.Default()
	}
	return &Saver{
		path:     path,
		debounce: debounce,
		dump:     dump,
		bus:      bus,
		log:      log,
	}
}

// Schedule arms a deferred save, or pushes an already-armed one out by
// a fresh debounce window. The write lands one quiet window after the
// last mutation, so any burst collapses into a single write.
func (s *Saver) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Reset(s.debounce)
		return
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		s.timer = nil
		s.mu.Unlock()
		s.flush()
	})
}

// FlushNow cancels any armed save and writes immediately. Called on
// shutdown so no debounced state is lost.
func (s *Saver) FlushNow() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.flush()
}

// Stop cancels any armed save without writing. Call after the final
// FlushNow.
func (s *Saver) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Saver) flush() error {
	data, count, err := s.dump()
	if err != nil {
		s.log.Error("snapshot dump failed", "error", err)
		return err
	}

	if err := writeAtomic(s.path, data); err != nil {
		s.log.Error("snapshot write failed", "path", s.path, "error", err)
		return err
	}

	s.log.Debug("snapshot saved", "path", s.path, "sessions", count, "bytes", len(data))
	s.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceSnapshot,
		Kind:      events.KindSnapshotSaved,
		Data:      map[string]any{"sessions": count, "bytes": len(data)},
	})
	return nil
}

// writeAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmpName)
		if werr != nil {
			return fmt.Errorf("writing snapshot: %w", werr)
		}
		return fmt.Errorf("closing snapshot: %w", cerr)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Encode serializes a session list in snapshot format.
func Encode(sessions []*session.Session) ([]byte, error) {
	return json.MarshalIndent(sessions, "", "  ")
}

// Load reads the snapshot at path. A missing file is a clean first
// start and returns an empty list.
func Load(path string) ([]*session.Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var sessions []*session.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	return sessions, nil
}
