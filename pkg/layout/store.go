package layout

import (
	"context"
	"strings"

	"github.com/kelpfield/riggen/pkg/errors"
)

// Store persists named layouts. Implementations are safe for concurrent
// use.
type Store interface {
	// Save writes the layout under name, replacing any existing layout
	// with that name.
	Save(ctx context.Context, name string, l Layout) error

	// Load returns the layout saved under name. Missing names return an
	// error with code [errors.ErrCodeNotFound].
	Load(ctx context.Context, name string) (Layout, error)

	// List returns the names of all saved layouts in sorted order.
	List(ctx context.Context) ([]string, error)

	// Delete removes the layout saved under name. Deleting a name that
	// was never saved is not an error.
	Delete(ctx context.Context, name string) error

	// Close releases any resources held by the store.
	Close() error
}

// validName rejects names that cannot address a stored layout: the
// empty string, and anything carrying a path separator, which would let
// a name escape a file store's directory.
func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return errors.New(errors.ErrCodeInvalidInput, "layout name %q is not storable", name)
	}
	return nil
}
