package geometry

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"modelcat/internal/filesystem"
)

// readOBJ streams the faces of a Wavefront OBJ file into sink, fan
// triangulating polygons. It returns the number of vertices declared.
func readOBJ(path string, sink triangleSink) (int64, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var vertices []Vec3
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return 0, fmt.Errorf("line %d: vertex needs 3 coordinates", line)
			}
			p, err := parseVec3(fields[1:4])
			if err != nil {
				return 0, fmt.Errorf("line %d: %w", line, err)
			}
			vertices = append(vertices, p)
		case "f":
			if len(fields) < 4 {
				return 0, fmt.Errorf("line %d: face needs at least 3 vertices", line)
			}
			idx := make([]int, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				i, err := resolveOBJIndex(ref, len(vertices))
				if err != nil {
					return 0, fmt.Errorf("line %d: %w", line, err)
				}
				idx = append(idx, i)
			}
			for k := 1; k+1 < len(idx); k++ {
				sink(Triangle{vertices[idx[0]], vertices[idx[k]], vertices[idx[k+1]]})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return int64(len(vertices)), nil
}

// resolveOBJIndex converts a face reference ("7", "7/1/3", "-1//2") to a
// zero-based vertex index. Negative indices count back from the last vertex.
func resolveOBJIndex(ref string, count int) (int, error) {
	if slash := strings.IndexByte(ref, '/'); slash >= 0 {
		ref = ref[:slash]
	}
	n, err := strconv.Atoi(ref)
	if err != nil {
		return 0, fmt.Errorf("invalid face index %q", ref)
	}
	switch {
	case n > 0 && n <= count:
		return n - 1, nil
	case n < 0 && -n <= count:
		return count + n, nil
	}
	return 0, fmt.Errorf("face index %d out of range (%d vertices)", n, count)
}
