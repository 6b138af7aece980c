package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
)

// ScoreJob carries the output of an external spatial join for one dataset
// pair: the tiling and the raw rows per tile.
type ScoreJob struct {
	JobID  string                `json:"job_id"`
	CaseID string                `json:"case_id,omitempty"`
	Kind   model.ScoreKind       `json:"kind"`
	Tiles  []model.PartitionTile `json:"tiles"`
	Lines  []model.TileLines     `json:"lines"`
	TS     time.Time             `json:"ts"`
}

func (j ScoreJob) Validate() error {
	if j.JobID == "" {
		return errors.New("job_id is required")
	}
	if !j.Kind.Valid() {
		return fmt.Errorf("job %s: kind is required", j.JobID)
	}
	if len(j.Tiles) == 0 {
		return fmt.Errorf("job %s: tiles must not be empty", j.JobID)
	}
	return nil
}
