// Package model defines core domain types shared across the service.
package model

import "fmt"

// BoundingBox is the envelope of a single record. The all-zero box is the
// "no geometry" sentinel produced when a record cannot be decoded.
type BoundingBox struct {
	MinX, MinY float64
	MaxX, MaxY float64
	Count      int64
}

// EmptyBox returns the sentinel box for a record without usable geometry.
func EmptyBox() BoundingBox {
	return BoundingBox{Count: 1}
}

// IsEmpty reports whether b is the zero-sum sentinel. A genuine box whose
// coordinates sum to zero (e.g. one centred on the origin) is also reported
// as empty.
func (b BoundingBox) IsEmpty() bool {
	return b.MinX+b.MinY+b.MaxX+b.MaxY == 0
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f (n=%d)", b.MinX, b.MinY, b.MaxX, b.MaxY, b.Count)
}

// Space is the reduced extent of one dataset. Extent fields are only
// meaningful when ObjectCount > 0.
type Space struct {
	MinX        float64 `json:"min_x"`
	MinY        float64 `json:"min_y"`
	MaxX        float64 `json:"max_x"`
	MaxY        float64 `json:"max_y"`
	ObjectCount int64   `json:"object_count"`
}

func (s Space) IsEmpty() bool { return s.ObjectCount == 0 }

func (s Space) SpanX() float64 { return s.MaxX - s.MinX }

func (s Space) SpanY() float64 { return s.MaxY - s.MinY }

func (s Space) String() string {
	return fmt.Sprintf("minX=%.6f minY=%.6f maxX=%.6f maxY=%.6f objects=%d",
		s.MinX, s.MinY, s.MaxX, s.MaxY, s.ObjectCount)
}
