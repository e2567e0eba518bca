// Package geometry extracts best-effort statistics and triangle meshes from
// model files.
//
// Supported: STL (binary and ASCII), OBJ, ASCII PLY, 3MF. Binary PLY reports
// element counts from its header only. STEP files report format and size.
// A parse failure for a known format is not an error: the caller still gets
// the format and file size.
package geometry

import (
	"errors"
	"fmt"
	"math"
	"os"

	"modelcat/internal/filesystem"
	"modelcat/internal/logging"
	"modelcat/internal/modeltypes"
)

// ErrUnsupportedFormat is returned for files that are not catalogued models.
var ErrUnsupportedFormat = errors.New("unsupported model format")

// Vec3 is a point in model space.
type Vec3 struct {
	X, Y, Z float64
}

func (a Vec3) sub(b Vec3) Vec3 { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }

func (a Vec3) cross(b Vec3) Vec3 {
	return Vec3{a.Y*b.Z - a.Z*b.Y, a.Z*b.X - a.X*b.Z, a.X*b.Y - a.Y*b.X}
}

func (a Vec3) dot(b Vec3) float64 { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }

func (a Vec3) length() float64 { return math.Sqrt(a.dot(a)) }

// Triangle is three vertices in counter-clockwise order.
type Triangle [3]Vec3

// Normal returns the unit face normal, or the zero vector for a degenerate face.
func (t Triangle) Normal() Vec3 {
	n := t[1].sub(t[0]).cross(t[2].sub(t[0]))
	l := n.length()
	if l == 0 {
		return Vec3{}
	}
	return Vec3{n.X / l, n.Y / l, n.Z / l}
}

// Mesh is a triangle soup.
type Mesh struct {
	Triangles []Triangle
	Min, Max  Vec3
}

// triangleSink receives triangles as they are parsed.
type triangleSink func(Triangle)

// stats accumulates metadata from a stream of triangles.
type stats struct {
	triangles int64
	min, max  Vec3
	volume    float64
	area      float64
}

func newStats() *stats {
	inf := math.Inf(1)
	return &stats{min: Vec3{inf, inf, inf}, max: Vec3{-inf, -inf, -inf}}
}

func (s *stats) addPoint(p Vec3) {
	s.min = Vec3{math.Min(s.min.X, p.X), math.Min(s.min.Y, p.Y), math.Min(s.min.Z, p.Z)}
	s.max = Vec3{math.Max(s.max.X, p.X), math.Max(s.max.Y, p.Y), math.Max(s.max.Z, p.Z)}
}

func (s *stats) add(t Triangle) {
	s.triangles++
	for _, p := range t {
		s.addPoint(p)
	}
	// Signed tetrahedron volume against the origin; sums to the enclosed
	// volume for a closed, consistently wound mesh.
	s.volume += t[0].dot(t[1].cross(t[2])) / 6
	s.area += t[1].sub(t[0]).cross(t[2].sub(t[0])).length() / 2
}

func (s *stats) apply(md *modeltypes.Metadata, vertices int64) {
	md.HasGeometry = true
	md.VertexCount = vertices
	md.FaceCount = s.triangles
	if s.triangles > 0 {
		md.DimX = s.max.X - s.min.X
		md.DimY = s.max.Y - s.min.Y
		md.DimZ = s.max.Z - s.min.Z
	}
	md.Volume = math.Abs(s.volume)
	md.SurfaceArea = s.area
}

// Extract returns the metadata of the model file at path. It fails only when
// the file cannot be stat'ed or its extension is not a model format.
func Extract(path string) (modeltypes.Metadata, error) {
	return ExtractAs(path, modeltypes.Ext(path))
}

// ExtractAs is Extract with an explicit extension, for temp files extracted
// from archives whose names do not carry the original extension.
func ExtractAs(path, ext string) (modeltypes.Metadata, error) {
	format := modeltypes.GetFormat(ext)
	if format == modeltypes.FormatUnknown {
		return modeltypes.Metadata{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return modeltypes.Metadata{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	md := modeltypes.Metadata{Format: string(format), FileSize: info.Size()}

	if err := extractGeometry(path, format, info.Size(), &md); err != nil {
		logging.Debug("Geometry extraction failed for %s: %v", path, err)
		// Best effort: keep format and size only
		return modeltypes.Metadata{Format: md.Format, FileSize: md.FileSize}, nil
	}
	return md, nil
}

func extractGeometry(path string, format modeltypes.Format, size int64, md *modeltypes.Metadata) error {
	s := newStats()

	switch format {
	case modeltypes.FormatSTL:
		if err := readSTL(path, size, s.add); err != nil {
			return err
		}
		s.apply(md, s.triangles*3)
	case modeltypes.FormatOBJ:
		vertices, err := readOBJ(path, s.add)
		if err != nil {
			return err
		}
		s.apply(md, vertices)
	case modeltypes.FormatPLY:
		header, err := readPLY(path, s.add)
		if err != nil {
			return err
		}
		if header.ascii {
			s.apply(md, header.vertices)
		} else {
			md.HasGeometry = true
			md.VertexCount = header.vertices
			md.FaceCount = header.faces
		}
	case modeltypes.Format3MF:
		vertices, err := read3MF(path, s.add)
		if err != nil {
			return err
		}
		s.apply(md, vertices)
	case modeltypes.FormatSTEP:
		// Format and size only
	}
	return nil
}

// LoadMesh reads all triangles of a mesh file. Formats without triangle data
// return ErrUnsupportedFormat.
func LoadMesh(path string) (*Mesh, error) {
	return LoadMeshAs(path, modeltypes.Ext(path))
}

// LoadMeshAs is LoadMesh with an explicit extension.
func LoadMeshAs(path, ext string) (*Mesh, error) {
	s := newStats()
	mesh := &Mesh{}
	sink := func(t Triangle) {
		s.add(t)
		mesh.Triangles = append(mesh.Triangles, t)
	}

	var err error
	switch modeltypes.GetFormat(ext) {
	case modeltypes.FormatSTL:
		var info os.FileInfo
		info, err = filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
		if err == nil {
			err = readSTL(path, info.Size(), sink)
		}
	case modeltypes.FormatOBJ:
		_, err = readOBJ(path, sink)
	case modeltypes.FormatPLY:
		_, err = readPLY(path, sink)
	case modeltypes.Format3MF:
		_, err = read3MF(path, sink)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, err
	}

	mesh.Min, mesh.Max = s.min, s.max
	return mesh, nil
}
