package geometry

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"modelcat/internal/filesystem"
)

type plyHeader struct {
	ascii    bool
	vertices int64
	faces    int64
	// vertexProps lists the vertex property names in declaration order
	vertexProps []string
	// elements before "vertex" whose rows must be skipped
	order []plyElement
}

type plyElement struct {
	name  string
	count int64
}

// readPLY parses the header of a PLY file. For ASCII files the vertex and face
// elements are streamed into sink as triangles as well.
func readPLY(path string, sink triangleSink) (*plyHeader, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	header, err := parsePLYHeader(scanner)
	if err != nil {
		return nil, err
	}
	if !header.ascii {
		return header, nil
	}
	return header, readASCIIPLYBody(scanner, header, sink)
}

func parsePLYHeader(scanner *bufio.Scanner) (*plyHeader, error) {
	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != "ply" {
		return nil, errors.New("missing ply magic")
	}

	h := &plyHeader{}
	current := ""
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) < 2 {
				return nil, errors.New("malformed format line")
			}
			h.ascii = fields[1] == "ascii"
		case "element":
			if len(fields) < 3 {
				return nil, errors.New("malformed element line")
			}
			count, err := strconv.ParseInt(fields[2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid element count %q", fields[2])
			}
			current = fields[1]
			switch current {
			case "vertex":
				h.vertices = count
			case "face":
				h.faces = count
			}
			h.order = append(h.order, plyElement{name: current, count: count})
		case "property":
			if current == "vertex" && len(fields) >= 3 {
				h.vertexProps = append(h.vertexProps, fields[len(fields)-1])
			}
		case "end_header":
			return h, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("unterminated ply header")
}

func readASCIIPLYBody(scanner *bufio.Scanner, h *plyHeader, sink triangleSink) error {
	xi, yi, zi := -1, -1, -1
	for i, name := range h.vertexProps {
		switch name {
		case "x":
			xi = i
		case "y":
			yi = i
		case "z":
			zi = i
		}
	}
	if xi < 0 || yi < 0 || zi < 0 {
		return errors.New("vertex element lacks x/y/z properties")
	}

	vertices := make([]Vec3, 0, h.vertices)
	for _, el := range h.order {
		for i := int64(0); i < el.count; i++ {
			if !scanner.Scan() {
				return fmt.Errorf("unexpected end of %s data", el.name)
			}
			fields := strings.Fields(scanner.Text())
			switch el.name {
			case "vertex":
				if len(fields) < len(h.vertexProps) {
					return fmt.Errorf("vertex %d has %d values", i, len(fields))
				}
				p, err := parseVec3([]string{fields[xi], fields[yi], fields[zi]})
				if err != nil {
					return err
				}
				vertices = append(vertices, p)
			case "face":
				if len(fields) < 4 {
					return fmt.Errorf("face %d is too short", i)
				}
				n, err := strconv.Atoi(fields[0])
				if err != nil || n < 3 || len(fields) < n+1 {
					return fmt.Errorf("face %d is malformed", i)
				}
				idx := make([]int, n)
				for k := 0; k < n; k++ {
					v, err := strconv.Atoi(fields[k+1])
					if err != nil || v < 0 || v >= len(vertices) {
						return fmt.Errorf("face %d has invalid index %q", i, fields[k+1])
					}
					idx[k] = v
				}
				for k := 1; k+1 < n; k++ {
					sink(Triangle{vertices[idx[0]], vertices[idx[k]], vertices[idx[k+1]]})
				}
			}
		}
	}
	return scanner.Err()
}
