package geometry

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"modelcat/internal/filesystem"
)

const (
	stlHeaderSize   = 80
	stlTriangleSize = 50
)

// readSTL streams the triangles of a binary or ASCII STL file into sink.
// A file is binary when its size matches the triangle count in its header,
// regardless of whether the header starts with "solid".
func readSTL(path string, size int64, sink triangleSink) error {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	head, err := r.Peek(stlHeaderSize + 4)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	if len(head) == stlHeaderSize+4 {
		count := int64(binary.LittleEndian.Uint32(head[stlHeaderSize:]))
		if size == stlHeaderSize+4+count*stlTriangleSize {
			return readBinarySTL(r, count, sink)
		}
	}
	if bytes.HasPrefix(bytes.TrimLeft(head, " \t\r\n"), []byte("solid")) {
		return readASCIISTL(r, sink)
	}
	return errors.New("not a valid STL file")
}

func readBinarySTL(r io.Reader, count int64, sink triangleSink) error {
	if _, err := io.CopyN(io.Discard, r, stlHeaderSize+4); err != nil {
		return err
	}

	buf := make([]byte, stlTriangleSize)
	for i := int64(0); i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("truncated STL at triangle %d: %w", i, err)
		}
		var t Triangle
		for v := 0; v < 3; v++ {
			off := 12 + v*12 // skip the stored normal
			t[v] = Vec3{
				X: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))),
				Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4:]))),
				Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[off+8:]))),
			}
		}
		sink(t)
	}
	return nil
}

func readASCIISTL(r io.Reader, sink triangleSink) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var t Triangle
	n := 0
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "vertex":
			if len(fields) < 4 {
				return fmt.Errorf("malformed vertex line %q", scanner.Text())
			}
			p, err := parseVec3(fields[1:4])
			if err != nil {
				return err
			}
			if n < 3 {
				t[n] = p
			}
			n++
		case "endfacet":
			if n != 3 {
				return fmt.Errorf("facet with %d vertices", n)
			}
			sink(t)
			n = 0
		}
	}
	return scanner.Err()
}

func parseVec3(fields []string) (Vec3, error) {
	var v [3]float64
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return Vec3{}, fmt.Errorf("invalid coordinate %q: %w", fields[i], err)
		}
		v[i] = f
	}
	return Vec3{v[0], v[1], v[2]}, nil
}
