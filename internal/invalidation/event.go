// Package invalidation defines the dataset change events that evict cached
// Spaces.
package invalidation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	OpUpdate = "update"
	OpDelete = "delete"
)

// Event announces that the records behind one or more dataset ids changed.
// Any Space computed for those ids is stale.
type Event struct {
	Version  int       `json:"version"`
	Op       string    `json:"op"`
	Datasets []string  `json:"datasets"`
	TS       time.Time `json:"ts"`
	Source   string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return errors.New("version must be 1")
	}
	switch e.Op {
	case OpUpdate, OpDelete:
	default:
		return fmt.Errorf("op must be %s|%s", OpUpdate, OpDelete)
	}
	if len(e.Datasets) == 0 {
		return errors.New("datasets is required")
	}
	for i, id := range e.Datasets {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("datasets[%d] is blank", i)
		}
	}
	if e.TS.IsZero() {
		return errors.New("ts is required")
	}
	return nil
}

// IDs returns the trimmed dataset ids with duplicates removed, in event order.
func (e Event) IDs() []string {
	seen := make(map[string]struct{}, len(e.Datasets))
	out := make([]string, 0, len(e.Datasets))
	for _, id := range e.Datasets {
		id = strings.TrimSpace(id)
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
