package geometry

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"modelcat/internal/archive"
)

// read3MF streams the triangles of every mesh object in a 3MF package into
// sink and returns the total number of vertices. Build item transforms and
// components are ignored; each object is read in its own coordinate space.
func read3MF(p string, sink triangleSink) (int64, error) {
	rc, err := archive.Open(p)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	var total int64
	found := false
	for _, f := range rc.File {
		name := strings.ToLower(f.Name)
		if !strings.HasPrefix(name, "3d/") || path.Ext(name) != ".model" {
			continue
		}
		found = true

		r, err := f.Open()
		if err != nil {
			return 0, fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		n, err := decode3MFModel(r, sink)
		r.Close()
		if err != nil {
			return 0, fmt.Errorf("failed to parse %s: %w", f.Name, err)
		}
		total += n
	}
	if !found {
		return 0, errors.New("no 3D model part in package")
	}
	return total, nil
}

func decode3MFModel(r io.Reader, sink triangleSink) (int64, error) {
	dec := xml.NewDecoder(r)

	var vertices []Vec3
	var total int64
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return 0, err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "vertices":
				vertices = vertices[:0]
			case "vertex":
				var v Vec3
				for _, a := range el.Attr {
					f, err := strconv.ParseFloat(a.Value, 64)
					if err != nil {
						continue
					}
					switch a.Name.Local {
					case "x":
						v.X = f
					case "y":
						v.Y = f
					case "z":
						v.Z = f
					}
				}
				vertices = append(vertices, v)
				total++
			case "triangle":
				var idx [3]int
				for _, a := range el.Attr {
					slot := -1
					switch a.Name.Local {
					case "v1":
						slot = 0
					case "v2":
						slot = 1
					case "v3":
						slot = 2
					}
					if slot < 0 {
						continue
					}
					i, err := strconv.Atoi(a.Value)
					if err != nil || i < 0 || i >= len(vertices) {
						return 0, fmt.Errorf("triangle references vertex %q of %d", a.Value, len(vertices))
					}
					idx[slot] = i
				}
				sink(Triangle{vertices[idx[0]], vertices[idx[1]], vertices[idx[2]]})
			}
		}
	}
}
