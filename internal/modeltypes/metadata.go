package modeltypes

// Metadata holds the format and geometry statistics extracted from a model file.
// Geometry fields are only meaningful when HasGeometry is set.
type Metadata struct {
	Format      string  `json:"format"`
	FileSize    int64   `json:"fileSize"`
	HasGeometry bool    `json:"-"`
	VertexCount int64   `json:"vertexCount,omitempty"`
	FaceCount   int64   `json:"faceCount,omitempty"`
	DimX        float64 `json:"dimX,omitempty"`
	DimY        float64 `json:"dimY,omitempty"`
	DimZ        float64 `json:"dimZ,omitempty"`
	Volume      float64 `json:"volume,omitempty"`
	SurfaceArea float64 `json:"surfaceArea,omitempty"`
}
