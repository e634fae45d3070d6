package cache

// Keyer builds the cache keys for the artifacts a rebuild can reuse.
// Inputs are content hashes (see [Hash]), so two identical manifests
// hit the same entry no matter what the rig is called.
type Keyer interface {
	// SkeletonKey keys a built skeleton document by the manifest and
	// guide layout that produced it.
	SkeletonKey(manifestHash, layoutHash string) string

	// RenderKey keys a rendered hierarchy image by the skeleton it
	// draws and the options that change the output bytes.
	RenderKey(skeletonHash string, opts RenderKeyOpts) string
}

// RenderKeyOpts are the rendering options baked into a render key.
type RenderKeyOpts struct {
	Format  string // "dot", "svg", "png"
	Rankdir string // graph direction, "TB" or "LR"
}

// DefaultKeyer generates unscoped keys. Wrap it in a [ScopedKeyer] to
// namespace entries per character.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard keyer.
func NewDefaultKeyer() Keyer {
	return &DefaultKeyer{}
}

// SkeletonKey generates a key for a built skeleton document.
func (k *DefaultKeyer) SkeletonKey(manifestHash, layoutHash string) string {
	return hashKey("skel", manifestHash, layoutHash)
}

// RenderKey generates a key for a rendered hierarchy image.
func (k *DefaultKeyer) RenderKey(skeletonHash string, opts RenderKeyOpts) string {
	return hashKey("render", skeletonHash, opts)
}
