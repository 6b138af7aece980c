package tilescore

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
)

// ErrMalformedRow marks a join row whose score column is missing or is not
// a finite number.
var ErrMalformedRow = errors.New("malformed score row")

// RowError identifies the offending row. It matches ErrMalformedRow with
// errors.Is and also unwraps to the parse error, if any.
type RowError struct {
	TileID int64
	Row    string
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("tile %d: row %q: %v", e.TileID, e.Row, e.Err)
}

func (e *RowError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedRow}
	}
	return []error{ErrMalformedRow, e.Err}
}

// Schema describes where the score of a tab-delimited join row lives.
type Schema struct {
	Kind model.ScoreKind
	// Offset counts columns from the end of the row; 1 is the last column.
	Offset int
	// MinFields is the shortest row that still holds the score.
	MinFields int
}

func SchemaFor(kind model.ScoreKind) (Schema, error) {
	if !kind.Valid() {
		return Schema{}, fmt.Errorf("score schema: invalid kind %d", int(kind))
	}
	return Schema{Kind: kind, Offset: kind.Offset(), MinFields: kind.Offset()}, nil
}

// Value parses the score column of row.
func (s Schema) Value(row string) (float64, error) {
	fields := strings.Split(row, "\t")
	if len(fields) < s.MinFields {
		return 0, fmt.Errorf("%d fields, %s needs at least %d", len(fields), s.Kind, s.MinFields)
	}
	raw := strings.TrimSpace(fields[len(fields)-s.Offset])
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite score %q", raw)
	}
	return v, nil
}
