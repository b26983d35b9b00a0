package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/syncwavelabs/syncwave/internal/domain/action"
	"go.uber.org/zap"
)

// document is the on-disk layout: one serialized collection holding the full
// action list in enqueue order.
type document struct {
	Version int              `json:"version"`
	Actions []*action.Action `json:"actions"`
}

const documentVersion = 1

// Store persists the queue as a single JSON document. Every mutation rewrites
// the document through a temp-file-then-rename swap, so an interrupted write
// leaves the previous state intact.
type Store struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	actions []*action.Action
}

// NewStore loads existing state from path. Unreadable or malformed state is
// logged and treated as an empty queue; it never fails construction.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	s := &Store{
		path:   path,
		logger: logger.Named("store.file"),
	}
	s.actions = s.loadDocument()
	return s, nil
}

func (s *Store) loadDocument() []*action.Action {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("store_unreadable_starting_empty", zap.Error(err), zap.String("path", s.path))
		}
		return nil
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Warn("store_corrupt_starting_empty", zap.Error(err), zap.String("path", s.path))
		return nil
	}
	return doc.Actions
}

func (s *Store) Load(ctx context.Context) ([]*action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyActions(s.actions), nil
}

func (s *Store) Append(ctx context.Context, a *action.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	s.actions = append(s.actions, &cp)
	return s.flushLocked()
}

func (s *Store) Remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range s.actions {
		if a.ID == id {
			s.actions = append(s.actions[:i], s.actions[i+1:]...)
			return s.flushLocked()
		}
	}
	return nil
}

func (s *Store) Update(ctx context.Context, id int64, mutate func(*action.Action)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.actions {
		if a.ID == id {
			mutate(a)
			return s.flushLocked()
		}
	}
	return nil
}

func (s *Store) ListByStatus(ctx context.Context, statuses []action.Status, limit int) ([]*action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[action.Status]struct{}, len(statuses))
	for _, st := range statuses {
		want[st] = struct{}{}
	}

	var out []*action.Action
	for _, a := range s.actions {
		if _, ok := want[a.Status]; !ok {
			continue
		}
		cp := *a
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// flushLocked writes the full document to a sibling temp file and renames it
// over the target. Callers must hold s.mu.
func (s *Store) flushLocked() error {
	doc := document{Version: documentVersion, Actions: s.actions}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sync temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("swap store file: %w", err)
	}
	return nil
}

func copyActions(in []*action.Action) []*action.Action {
	out := make([]*action.Action, 0, len(in))
	for _, a := range in {
		cp := *a
		out = append(out, &cp)
	}
	return out
}
