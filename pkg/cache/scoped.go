package cache

// ScopedKeyer wraps a [Keyer] with a prefix, giving each character its
// own cache namespace when several rigs share one backend.
//
// Example usage:
//
//	// Per-character keys on a shared Redis
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "rig:hero:")
//
//	// Unscoped keys for a local file cache
//	keyer := NewDefaultKeyer()
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix. The prefix is
// prepended to all generated keys. A nil inner falls back to the
// default keyer.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// SkeletonKey generates a prefixed key for a skeleton document.
func (k *ScopedKeyer) SkeletonKey(manifestHash, layoutHash string) string {
	return k.prefix + k.inner.SkeletonKey(manifestHash, layoutHash)
}

// RenderKey generates a prefixed key for a rendered hierarchy image.
func (k *ScopedKeyer) RenderKey(skeletonHash string, opts RenderKeyOpts) string {
	return k.prefix + k.inner.RenderKey(skeletonHash, opts)
}
