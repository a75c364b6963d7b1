// Package preview draws classified entities to a PNG so rule edits can be
// checked without the downstream builder.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/flightaware/mapcraft-exporter/pkg/elements"
	"github.com/flightaware/mapcraft-exporter/pkg/geo"

	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

var (
	unclassifiedRegion = color.NRGBA{0x33, 0x33, 0x33, alpha(0.2)}
	buildingFill       = color.NRGBA{0x00, 0x84, 0xff, alpha(0.3)}
	roadStroke         = color.NRGBA{0xb3, 0x00, 0xff, alpha(0.3)}
	poiDot             = color.NRGBA{0xe0, 0x40, 0x20, 0xff}
	anchorMark         = color.NRGBA{0xff, 0x00, 0x00, 0xff}
	labelInk           = color.NRGBA{0x20, 0x20, 0x20, 0xff}
)

// Options controls the image size and decorations
type Options struct {
	Width   int
	Height  int
	Padding int
	// Anchor, when set, is marked with a cross
	Anchor *orb.Point
	Labels bool
	// Projector maps lng/lat to planar coordinates before framing.
	// nil draws coordinates as given, for entities that are already planar.
	Projector geo.Projector
}

func alpha(a float64) uint8 { return uint8(math.Round(a * 255)) }

// ParseColor reads #rgb or #rrggbb
func ParseColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.NRGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 0xff}, nil
}

// RegionColor is the fill of a region: its preview color, or a faint grey
// when it has none.
func RegionColor(r elements.Region) color.NRGBA {
	if r.PreviewColor == "" {
		return unclassifiedRegion
	}
	c, err := ParseColor(r.PreviewColor)
	if err != nil {
		return unclassifiedRegion
	}
	return c
}

// frame maps geodetic points to pixels, north up, preserving aspect ratio
type frame struct {
	bound  orb.Bound
	scale  float64
	pad    float64
	height float64
}

func newFrame(b orb.Bound, opts Options) frame {
	w := float64(opts.Width - 2*opts.Padding)
	h := float64(opts.Height - 2*opts.Padding)
	scale := 1.0
	dx, dy := b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]
	if dx > 0 && dy > 0 {
		scale = math.Min(w/dx, h/dy)
	} else if dx > 0 {
		scale = w / dx
	} else if dy > 0 {
		scale = h / dy
	}
	return frame{bound: b, scale: scale, pad: float64(opts.Padding), height: float64(opts.Height)}
}

func (f frame) px(p orb.Point) (float32, float32) {
	x := f.pad + (p[0]-f.bound.Min[0])*f.scale
	y := f.height - f.pad - (p[1]-f.bound.Min[1])*f.scale
	return float32(x), float32(y)
}

// Render draws els: regions, then buildings, roads, POIs and the anchor
func Render(els *elements.Elements, opts Options) *image.RGBA {
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.Height <= 0 {
		opts.Height = 1024
	}
	if opts.Padding <= 0 {
		opts.Padding = 16
	}
	img := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	if opts.Projector != nil {
		els, opts.Anchor = project(els, opts.Anchor, opts.Projector)
	}

	b, ok := els.Bound()
	if opts.Anchor != nil {
		if ok {
			b = b.Extend(*opts.Anchor)
		} else {
			b, ok = orb.Bound{Min: *opts.Anchor, Max: *opts.Anchor}, true
		}
	}
	if !ok {
		return img
	}
	f := newFrame(b, opts)
	c := &canvas{img: img, f: f}

	for _, r := range els.Regions {
		col := RegionColor(r)
		for _, ring := range r.Path {
			c.fill(ring, col)
		}
	}
	for _, bl := range els.Buildings {
		for _, ring := range bl.Path {
			c.fill(ring, buildingFill)
		}
	}
	for _, r := range els.Roads {
		c.stroke(r.Path, float32(math.Max(1, float64(r.Weight))), roadStroke)
	}
	for _, p := range els.POIs {
		c.dot(p.Pos, 3, poiDot)
		if opts.Labels && p.Name != "" {
			c.label(p.Pos, p.Name)
		}
	}
	if opts.Labels {
		for _, rn := range els.RoadNames {
			if len(rn.Path) > 0 && rn.Name != "" {
				c.label(rn.Path[len(rn.Path)/2], rn.Name)
			}
		}
	}
	if opts.Anchor != nil {
		c.cross(*opts.Anchor, 6, anchorMark)
	}
	return img
}

// project maps els and anchor into the projector's plane, relative to its origin
func project(els *elements.Elements, anchor *orb.Point, proj geo.Projector) (*elements.Elements, *orb.Point) {
	var origin orb.Point
	out := elements.Remap(els, origin, proj)
	if anchor != nil {
		p, o := proj.Project(*anchor), proj.Project(origin)
		anchor = &orb.Point{p[0] - o[0], p[1] - o[1]}
	}
	return out, anchor
}

type canvas struct {
	img *image.RGBA
	f   frame
}

func (c *canvas) rasterizer() *vector.Rasterizer {
	b := c.img.Bounds()
	return vector.NewRasterizer(b.Dx(), b.Dy())
}

func (c *canvas) paint(r *vector.Rasterizer, col color.Color) {
	r.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{})
}

func (c *canvas) fill(ring elements.Path, col color.Color) {
	if len(ring) < 3 {
		return
	}
	r := c.rasterizer()
	x, y := c.f.px(ring[0])
	r.MoveTo(x, y)
	for _, p := range ring[1:] {
		x, y := c.f.px(p)
		r.LineTo(x, y)
	}
	r.ClosePath()
	c.paint(r, col)
}

// stroke draws each segment as a quad of the given pixel width
func (c *canvas) stroke(path elements.Path, width float32, col color.Color) {
	if len(path) < 2 {
		return
	}
	r := c.rasterizer()
	half := float64(width) / 2
	for i := 0; i+1 < len(path); i++ {
		x0, y0 := c.f.px(path[i])
		x1, y1 := c.f.px(path[i+1])
		dx, dy := float64(x1-x0), float64(y1-y0)
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		nx, ny := float32(-dy/l*half), float32(dx/l*half)
		r.MoveTo(x0+nx, y0+ny)
		r.LineTo(x1+nx, y1+ny)
		r.LineTo(x1-nx, y1-ny)
		r.LineTo(x0-nx, y0-ny)
		r.ClosePath()
	}
	c.paint(r, col)
}

func (c *canvas) dot(p orb.Point, radius float32, col color.Color) {
	x, y := c.f.px(p)
	r := c.rasterizer()
	const steps = 12
	for i := 0; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / steps
		px := x + radius*float32(math.Cos(a))
		py := y + radius*float32(math.Sin(a))
		if i == 0 {
			r.MoveTo(px, py)
			continue
		}
		r.LineTo(px, py)
	}
	r.ClosePath()
	c.paint(r, col)
}

func (c *canvas) cross(p orb.Point, size float32, col color.Color) {
	x, y := c.f.px(p)
	r := c.rasterizer()
	for _, q := range [][4]float32{{x - size, y - 1, x + size, y + 1}, {x - 1, y - size, x + 1, y + size}} {
		r.MoveTo(q[0], q[1])
		r.LineTo(q[2], q[1])
		r.LineTo(q[2], q[3])
		r.LineTo(q[0], q[3])
		r.ClosePath()
	}
	c.paint(r, col)
}

func (c *canvas) label(p orb.Point, text string) {
	x, y := c.f.px(p)
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(labelInk),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(int(x)+4, int(y)-4),
	}
	d.DrawString(text)
}

// WritePNG encodes img to w
func WritePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// SavePNG renders els and writes the image to path
func SavePNG(path string, els *elements.Elements, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating preview: %w", err)
	}
	if err := WritePNG(f, Render(els, opts)); err != nil {
		f.Close()
		return fmt.Errorf("encoding preview: %w", err)
	}
	return f.Close()
}
