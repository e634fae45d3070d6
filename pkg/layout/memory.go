package layout

import (
	"context"
	"sort"
	"sync"

	"github.com/tiendc/go-deepcopy"

	"github.com/kelpfield/riggen/pkg/errors"
)

// Memory keeps layouts in process memory. Layouts are deep-copied on
// the way in and out, so callers can keep mutating their own maps
// without reaching into the store.
type Memory struct {
	mu      sync.RWMutex
	layouts map[string]Layout
}

// NewMemory creates an empty in-memory layout store.
func NewMemory() *Memory {
	return &Memory{layouts: map[string]Layout{}}
}

func (s *Memory) Save(ctx context.Context, name string, l Layout) error {
	if err := validName(name); err != nil {
		return err
	}
	cp, err := copyLayout(l)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.layouts[name] = cp
	return nil
}

func (s *Memory) Load(ctx context.Context, name string) (Layout, error) {
	s.mu.RLock()
	l, ok := s.layouts[name]
	s.mu.RUnlock()

	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "layout %q not found", name)
	}
	return copyLayout(l)
}

func (s *Memory) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.layouts))
	for name := range s.layouts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Memory) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.layouts, name)
	return nil
}

func (s *Memory) Close() error { return nil }

func copyLayout(l Layout) (Layout, error) {
	cp := Layout{}
	if err := deepcopy.Copy(&cp, l); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "copy layout")
	}
	return cp, nil
}

var _ Store = (*Memory)(nil)
