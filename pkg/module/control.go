package module

import (
	"github.com/kelpfield/riggen/pkg/errors"
	"github.com/kelpfield/riggen/pkg/scene"
)

// Shape names a control curve silhouette. The scene port has no curve
// geometry, so the shape rides on the control node as data for the host
// adapter to draw.
type Shape int

const (
	ShapeCircle Shape = iota
	ShapeSquare
	ShapeCube
	ShapeSphere
)

// String returns the lowercase shape name.
func (s Shape) String() string {
	switch s {
	case ShapeCircle:
		return "circle"
	case ShapeSquare:
		return "square"
	case ShapeCube:
		return "cube"
	case ShapeSphere:
		return "sphere"
	}
	return "unknown"
}

// Color is an RGB display color in 0..1.
type Color struct {
	R, G, B float64
}

// The rig palette. FK controls read green, IK magenta, structural
// controls yellow, guides amber, and blade guides the muted teal that
// marks orientation helpers.
var (
	ColorMain      = Color{1, 1, 0}
	ColorSecondary = Color{0, 1, 1}
	ColorFK        = Color{0.2, 0.8, 0.2}
	ColorIK        = Color{0.8, 0.2, 0.8}
	ColorGuide     = Color{1, 0.7, 0}
	ColorBlade     = Color{0, 0.8, 0.8}
)

// ControlSpec describes a control's drawn appearance.
type ControlSpec struct {
	Shape Shape
	Size  float64
	Color Color
}

// Style attribute names. Controls carry their appearance as scalar
// attributes so mirroring can copy a hand-tuned look from one side to
// the other through the scene alone.
const (
	attrShape  = "shapeType"
	attrSize   = "shapeSize"
	attrColorR = "colorR"
	attrColorG = "colorG"
	attrColorB = "colorB"
)

// NewControl creates a control transform inside a fresh offset group
// under parent and tags it with the spec's style attributes. The caller
// places the offset group; the control starts zeroed inside it.
func NewControl(g scene.Graph, name string, spec ControlSpec, parent scene.NodeID) (ctrl, offset scene.NodeID, err error) {
	offset, err = g.CreateTransform(OffsetName(name), parent)
	if err != nil {
		return "", "", errors.Wrap(errors.ErrCodeInternal, err, "create control group %s", OffsetName(name))
	}
	ctrl, err = g.CreateTransform(name, offset)
	if err != nil {
		return "", "", errors.Wrap(errors.ErrCodeInternal, err, "create control %s", name)
	}
	if err := writeStyle(g, ctrl, spec); err != nil {
		return "", "", err
	}
	return ctrl, offset, nil
}

// Paint tags a node with color attributes only, the treatment guides
// get.
func Paint(g scene.Graph, id scene.NodeID, c Color) error {
	zero, one := 0.0, 1.0
	for _, ch := range [3]struct {
		attr string
		v    float64
	}{{attrColorR, c.R}, {attrColorG, c.G}, {attrColorB, c.B}} {
		spec := scene.AttrSpec{Min: &zero, Max: &one, Default: ch.v}
		if _, err := g.AddAttr(id, ch.attr, spec); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "paint node")
		}
	}
	return nil
}

func writeStyle(g scene.Graph, ctrl scene.NodeID, spec ControlSpec) error {
	zero := 0.0
	if _, err := g.AddAttr(ctrl, attrShape, scene.AttrSpec{Default: float64(spec.Shape)}); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "tag control shape")
	}
	if _, err := g.AddAttr(ctrl, attrSize, scene.AttrSpec{Min: &zero, Default: spec.Size}); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "tag control size")
	}
	return Paint(g, ctrl, spec.Color)
}

// ReadStyle reads a control's style attributes back into a spec.
func ReadStyle(g scene.Graph, ctrl scene.NodeID) (ControlSpec, error) {
	var spec ControlSpec
	read := func(attr string) (float64, error) {
		v, err := g.Scalar(scene.AttrRef{Node: ctrl, Attr: attr})
		if err != nil {
			return 0, errors.Wrap(errors.ErrCodeAttrNotFound, err, "read control style")
		}
		return v, nil
	}
	shape, err := read(attrShape)
	if err != nil {
		return spec, err
	}
	spec.Shape = Shape(int(shape))
	if spec.Size, err = read(attrSize); err != nil {
		return spec, err
	}
	if spec.Color.R, err = read(attrColorR); err != nil {
		return spec, err
	}
	if spec.Color.G, err = read(attrColorG); err != nil {
		return spec, err
	}
	if spec.Color.B, err = read(attrColorB); err != nil {
		return spec, err
	}
	return spec, nil
}

// CopyStyle copies the style attributes from one control to another.
// Mirrored rebuilds call it so a hand-tuned source side carries over;
// a source without style attributes is left alone and reported false.
func CopyStyle(g scene.Graph, src, dst scene.NodeID) (bool, error) {
	spec, err := ReadStyle(g, src)
	if err != nil {
		if errors.Is(err, errors.ErrCodeAttrNotFound) {
			return false, nil
		}
		return false, err
	}
	for _, w := range [5]struct {
		attr string
		v    float64
	}{
		{attrShape, float64(spec.Shape)},
		{attrSize, spec.Size},
		{attrColorR, spec.Color.R},
		{attrColorG, spec.Color.G},
		{attrColorB, spec.Color.B},
	} {
		if err := g.SetScalar(scene.AttrRef{Node: dst, Attr: w.attr}, w.v); err != nil {
			return false, errors.Wrap(errors.ErrCodeInternal, err, "copy control style")
		}
	}
	return true, nil
}

// CopyControlStyles pushes this module's control styling onto the
// same-named controls of another module. Mirroring calls it so a
// hand-tuned side carries over; controls only one side has are skipped.
func (b *Base) CopyControlStyles(target *Base) error {
	for key, src := range b.Controls {
		dst, ok := target.Controls[key]
		if !ok {
			continue
		}
		if _, err := CopyStyle(b.Scene, src, dst); err != nil {
			return err
		}
	}
	return nil
}
