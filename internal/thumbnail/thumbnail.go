// Package thumbnail renders flat PNG previews of model meshes.
package thumbnail

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"modelcat/internal/geometry"
	"modelcat/internal/logging"
	"modelcat/internal/metrics"

	"github.com/disintegration/imaging"
	"golang.org/x/image/vector"
)

// Mode selects how triangles are drawn.
type Mode string

const (
	// ModeSolid fills triangles, shaded by height and facing.
	ModeSolid Mode = "solid"
	// ModeWireframe draws triangle edges only.
	ModeWireframe Mode = "wireframe"
)

// Quality selects the output resolution.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// maxTriangles bounds rendering cost; larger meshes are drawn with a stride.
const maxTriangles = 200_000

var (
	background = color.RGBA{0xf2, 0xf2, 0xf2, 0xff}
	wireColor  = color.RGBA{0x30, 0x50, 0x80, 0xff}
)

// ParseMode returns the mode for s, defaulting to solid.
func ParseMode(s string) Mode {
	if Mode(s) == ModeWireframe {
		return ModeWireframe
	}
	return ModeSolid
}

// ParseQuality returns the quality for s, defaulting to medium.
func ParseQuality(s string) Quality {
	switch Quality(s) {
	case QualityLow, QualityHigh:
		return Quality(s)
	}
	return QualityMedium
}

// Size returns the edge length in pixels of a thumbnail at quality q.
func (q Quality) Size() int {
	switch q {
	case QualityLow:
		return 128
	case QualityHigh:
		return 512
	default:
		return 256
	}
}

// Generator writes thumbnails named <id>.png into a directory.
type Generator struct {
	dir     string
	enabled bool
	mu      sync.Mutex
}

// NewGenerator returns a generator writing into dir. A disabled generator
// never renders anything.
func NewGenerator(dir string, enabled bool) *Generator {
	if enabled {
		logging.Debug("Thumbnail generator: enabled, dir: %s", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.Warn("Thumbnail generator: failed to create dir: %v", err)
		}
	} else {
		logging.Debug("Thumbnail generator: disabled")
	}
	return &Generator{dir: dir, enabled: enabled}
}

// IsEnabled reports whether thumbnails are generated.
func (g *Generator) IsEnabled() bool {
	return g != nil && g.enabled
}

// Dir returns the output directory.
func (g *Generator) Dir() string {
	return g.dir
}

// Generate renders the mesh at path and returns the written filename. It
// returns "" with a nil error when the generator is disabled or the file has
// no drawable triangles.
func (g *Generator) Generate(path string, id int64, mode Mode, quality Quality) (string, error) {
	if !g.IsEnabled() {
		return "", nil
	}

	start := time.Now()
	filename, err := g.generate(path, id, mode, quality)
	metrics.ThumbnailGenerationDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		metrics.ThumbnailGenerationsTotal.WithLabelValues(string(mode), "error").Inc()
		return "", err
	case filename == "":
		metrics.ThumbnailGenerationsTotal.WithLabelValues(string(mode), "empty").Inc()
	default:
		metrics.ThumbnailGenerationsTotal.WithLabelValues(string(mode), "success").Inc()
	}
	return filename, nil
}

func (g *Generator) generate(path string, id int64, mode Mode, quality Quality) (string, error) {
	mesh, err := geometry.LoadMesh(path)
	if errors.Is(err, geometry.ErrUnsupportedFormat) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load mesh %s: %w", path, err)
	}
	if len(mesh.Triangles) == 0 {
		return "", nil
	}

	size := quality.Size()
	// Render at twice the size and downsample for smoother edges
	img := Render(mesh, mode, size*2)
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	filename := strconv.FormatInt(id, 10) + ".png"

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.write(filename, thumb); err != nil {
		return "", err
	}
	logging.Debug("Thumbnail written: %s (%d triangles)", filename, len(mesh.Triangles))
	return filename, nil
}

// write encodes img to a temp file and renames it into place.
func (g *Generator) write(filename string, img image.Image) error {
	tmp, err := os.CreateTemp(g.dir, ".thumb-*.png")
	if err != nil {
		return fmt.Errorf("failed to create thumbnail file: %w", err)
	}
	tmpName := tmp.Name()

	if err := imaging.Encode(tmp, img, imaging.PNG); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(g.dir, filename)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to store thumbnail: %w", err)
	}
	return nil
}

// Remove deletes a generated thumbnail. A missing file is not an error.
func (g *Generator) Remove(filename string) error {
	if filename == "" || filepath.Base(filename) != filename {
		return nil
	}
	err := os.Remove(filepath.Join(g.dir, filename))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Render draws mesh top-down (looking along -Z) onto a size x size canvas.
func Render(mesh *geometry.Mesh, mode Mode, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	tris := mesh.Triangles
	if len(tris) > maxTriangles {
		stride := (len(tris) + maxTriangles - 1) / maxTriangles
		sampled := make([]geometry.Triangle, 0, maxTriangles)
		for i := 0; i < len(tris); i += stride {
			sampled = append(sampled, tris[i])
		}
		tris = sampled
	}

	p := newProjector(mesh, size)
	r := &rasterizer{dst: dst}

	switch mode {
	case ModeWireframe:
		width := float32(size) / 256
		if width < 1 {
			width = 1
		}
		src := image.NewUniform(wireColor)
		for _, t := range tris {
			a, b, c := p.point(t[0]), p.point(t[1]), p.point(t[2])
			r.line(a, b, width, src)
			r.line(b, c, width, src)
			r.line(c, a, width, src)
		}
	default:
		// Painter's order: lowest triangles first
		order := make([]int, len(tris))
		depth := make([]float64, len(tris))
		for i, t := range tris {
			order[i] = i
			depth[i] = (t[0].Z + t[1].Z + t[2].Z) / 3
		}
		sort.SliceStable(order, func(a, b int) bool { return depth[order[a]] < depth[order[b]] })

		for _, i := range order {
			t := tris[i]
			shade := p.shade(t, depth[i])
			r.polygon([]point{p.point(t[0]), p.point(t[1]), p.point(t[2])}, image.NewUniform(shade))
		}
	}
	return dst
}

type point struct{ x, y float32 }

// projector maps model XY into canvas pixels, preserving aspect ratio.
type projector struct {
	min, max geometry.Vec3
	scale    float64
	offX     float64
	offY     float64
	size     float64
}

func newProjector(mesh *geometry.Mesh, size int) *projector {
	const margin = 0.05

	p := &projector{min: mesh.Min, max: mesh.Max, size: float64(size)}
	w := mesh.Max.X - mesh.Min.X
	h := mesh.Max.Y - mesh.Min.Y
	extent := math.Max(w, h)
	if extent == 0 {
		extent = 1
	}
	usable := p.size * (1 - 2*margin)
	p.scale = usable / extent
	p.offX = (p.size - w*p.scale) / 2
	p.offY = (p.size - h*p.scale) / 2
	return p
}

func (p *projector) point(v geometry.Vec3) point {
	x := p.offX + (v.X-p.min.X)*p.scale
	// Image Y grows downward
	y := p.size - (p.offY + (v.Y-p.min.Y)*p.scale)
	return point{float32(x), float32(y)}
}

// shade blends facing (|normal.Z|) with height for a depth cue.
func (p *projector) shade(t geometry.Triangle, z float64) color.RGBA {
	facing := math.Abs(t.Normal().Z)
	height := 0.5
	if span := p.max.Z - p.min.Z; span > 0 {
		height = (z - p.min.Z) / span
	}
	l := 0.25 + 0.45*facing + 0.3*height
	if l > 1 {
		l = 1
	}
	return color.RGBA{
		R: uint8(90 * l),
		G: uint8(140 * l),
		B: uint8(210 * l),
		A: 0xff,
	}
}

// rasterizer draws small polygons by rasterizing only their bounding box.
type rasterizer struct {
	dst *image.RGBA
	z   vector.Rasterizer
}

func (r *rasterizer) polygon(pts []point, src image.Image) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, pt := range pts {
		minX = math.Min(minX, float64(pt.x))
		minY = math.Min(minY, float64(pt.y))
		maxX = math.Max(maxX, float64(pt.x))
		maxY = math.Max(maxY, float64(pt.y))
	}

	bounds := image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX))+1, int(math.Ceil(maxY))+1)
	clipped := bounds.Intersect(r.dst.Bounds())
	if clipped.Empty() {
		return
	}

	ox, oy := float32(bounds.Min.X), float32(bounds.Min.Y)
	r.z.Reset(bounds.Dx(), bounds.Dy())
	r.z.MoveTo(pts[0].x-ox, pts[0].y-oy)
	for _, pt := range pts[1:] {
		r.z.LineTo(pt.x-ox, pt.y-oy)
	}
	r.z.ClosePath()
	r.z.Draw(r.dst, bounds, src, image.Point{})
}

// line draws a segment as a quad of the given width.
func (r *rasterizer) line(a, b point, width float32, src image.Image) {
	dx, dy := b.x-a.x, b.y-a.y
	l := float32(math.Hypot(float64(dx), float64(dy)))
	if l == 0 {
		return
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	r.polygon([]point{
		{a.x + nx, a.y + ny},
		{b.x + nx, b.y + ny},
		{b.x - nx, b.y - ny},
		{a.x - nx, a.y - ny},
	}, src)
}
