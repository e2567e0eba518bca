package modeltypes

import "testing"

func TestGetFormat(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		want Format
	}{
		{name: "STL mesh", ext: ".stl", want: FormatSTL},
		{name: "OBJ mesh", ext: ".obj", want: FormatOBJ},
		{name: "3MF package", ext: ".3mf", want: Format3MF},
		{name: "PLY mesh", ext: ".ply", want: FormatPLY},
		{name: "STEP long extension", ext: ".step", want: FormatSTEP},
		{name: "STEP short extension", ext: ".stp", want: FormatSTEP},
		{name: "Archive is not a model", ext: ".zip", want: FormatUnknown},
		{name: "Unknown extension", ext: ".xyz", want: FormatUnknown},
		{name: "Empty extension", ext: "", want: FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetFormat(tt.ext); got != tt.want {
				t.Errorf("GetFormat(%q) = %q, want %q", tt.ext, got, tt.want)
			}
		})
	}
}

func TestIsModelFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"benchy.stl", true},
		{"BENCHY.STL", true},
		{"part.Obj", true},
		{"bundle.zip", false},
		{"readme.txt", false},
		{"noext", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsModelFile(tt.name); got != tt.want {
				t.Errorf("IsModelFile(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestIsArchiveFile(t *testing.T) {
	if !IsArchiveFile("pack.ZIP") {
		t.Error("Expected pack.ZIP to be an archive")
	}
	if IsArchiveFile("model.stl") {
		t.Error("Expected model.stl not to be an archive")
	}
}

func TestGetMimeType(t *testing.T) {
	if got := GetMimeType(".stl"); got != "model/stl" {
		t.Errorf("Expected model/stl, got %s", got)
	}
	if got := GetMimeType(".bin"); got != "application/octet-stream" {
		t.Errorf("Expected application/octet-stream, got %s", got)
	}
}

func TestStem(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/lib/models/benchy.stl", "benchy"},
		{"/lib/models/v1.2.final.obj", "v1.2.final"},
		{"noext", "noext"},
	}

	for _, tt := range tests {
		if got := Stem(tt.path); got != tt.want {
			t.Errorf("Stem(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestIsHidden(t *testing.T) {
	if !IsHidden(".DS_Store") {
		t.Error("Expected .DS_Store to be hidden")
	}
	if IsHidden("models") {
		t.Error("Expected models not to be hidden")
	}
}
