package layout

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kelpfield/riggen/pkg/errors"
)

// FileStore keeps each layout as a pretty-printed JSON file named
// "<name>.json" inside one directory. The files are plain enough to
// diff and hand-edit between rebuilds.
type FileStore struct {
	mu  sync.RWMutex
	dir string
}

// NewFileStore creates a file-based layout store rooted at dir,
// creating the directory if needed. If dir is empty, defaults to
// "layouts" under the working directory.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "layouts"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStore, err, "create layout dir %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) layoutPath(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *FileStore) Save(ctx context.Context, name string, l Layout) error {
	if err := validName(name); err != nil {
		return err
	}

	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeStore, err, "marshal layout %s", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write to a temp file in the same directory and rename it into
	// place, so a crashed save never leaves a half-written layout.
	tmp, err := os.CreateTemp(s.dir, name+"-*.tmp")
	if err != nil {
		return errors.Wrap(errors.ErrCodeStore, err, "create temp file for layout %s", name)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(errors.ErrCodeStore, err, "write layout %s", name)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(errors.ErrCodeStore, err, "write layout %s", name)
	}
	if err := os.Rename(tmp.Name(), s.layoutPath(name)); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(errors.ErrCodeStore, err, "store layout %s", name)
	}
	return nil
}

func (s *FileStore) Load(ctx context.Context, name string) (Layout, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.layoutPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeNotFound, "layout %q not found", name)
		}
		return nil, errors.Wrap(errors.ErrCodeStore, err, "read layout %s", name)
	}

	var l Layout
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "parse layout %s", name)
	}
	return l, nil
}

func (s *FileStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStore, err, "read layout dir %s", s.dir)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) Delete(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.layoutPath(name)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrCodeStore, err, "remove layout %s", name)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// Path returns the directory holding the layout files.
func (s *FileStore) Path() string {
	return s.dir
}

var _ Store = (*FileStore)(nil)
