// Package layout stores guide layouts: the world placements of every
// module's guides, captured from a scene and applied back onto freshly
// created guides so a rig can be rebuilt to match a saved silhouette.
//
// The data model is deliberately plain. A [Layout] maps module IDs to
// [Guides], which map guide roles to a [Pose]. Stores persist layouts by
// name; [Memory] for tests, [FileStore] for a layout directory on disk,
// and [MongoStore] for a shared database.
package layout

import (
	"sort"
)

// Pose is one guide's world placement: position and rotation in degrees.
type Pose struct {
	Position [3]float64 `json:"position" bson:"position"`
	Rotation [3]float64 `json:"rotation" bson:"rotation"`
}

// Guides holds the poses of one module's guides, keyed by guide role
// ("shoulder", "pole", "upv_neck_base").
type Guides map[string]Pose

// Layout holds every module's guide poses, keyed by module ID ("arm_l").
type Layout map[string]Guides

// Modules returns the layout's module IDs in sorted order.
func (l Layout) Modules() []string {
	ids := make([]string, 0, len(l))
	for id := range l {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Merge overlays other onto l module by module: modules present in other
// replace the same module in l, modules only in l survive. Returns l for
// chaining.
func (l Layout) Merge(other Layout) Layout {
	for id, g := range other {
		l[id] = g
	}
	return l
}
