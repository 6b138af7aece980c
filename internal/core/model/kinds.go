package model

import (
	"fmt"
	"strings"
)

// ScoreKind selects which trailing column of a join row carries the score
// to aggregate.
type ScoreKind int

const (
	Jaccard ScoreKind = iota + 1
	Dice
)

var scoreKinds = map[ScoreKind]struct {
	name   string
	offset int
}{
	Jaccard: {name: "jaccard", offset: 1},
	Dice:    {name: "dice", offset: 2},
}

// ScoreKinds lists every supported kind in declaration order.
func ScoreKinds() []ScoreKind { return []ScoreKind{Jaccard, Dice} }

func ParseScoreKind(s string) (ScoreKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, k := range ScoreKinds() {
		if scoreKinds[k].name == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown score kind %q", s)
}

func (k ScoreKind) Valid() bool {
	_, ok := scoreKinds[k]
	return ok
}

// Offset is the position of the score column counted from the end of the
// row (1 = last column).
func (k ScoreKind) Offset() int {
	return scoreKinds[k].offset
}

func (k ScoreKind) String() string {
	if d, ok := scoreKinds[k]; ok {
		return d.name
	}
	return fmt.Sprintf("ScoreKind(%d)", int(k))
}

func (k ScoreKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid score kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *ScoreKind) UnmarshalText(b []byte) error {
	v, err := ParseScoreKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Predicate names the spatial relation evaluated by the join collaborator.
type Predicate string

const (
	Intersects Predicate = "intersects"
	Touches    Predicate = "touches"
	Crosses    Predicate = "crosses"
	Contains   Predicate = "contains"
	Adjacent   Predicate = "adjacent"
	Disjoint   Predicate = "disjoint"
	Equals     Predicate = "equals"
	DWithin    Predicate = "dwithin"
	Within     Predicate = "within"
	Overlaps   Predicate = "overlaps"
)

func ParsePredicate(s string) (Predicate, error) {
	p := Predicate(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case Intersects, Touches, Crosses, Contains, Adjacent, Disjoint, Equals, DWithin, Within, Overlaps:
		return p, nil
	default:
		return "", fmt.Errorf("unknown predicate %q", s)
	}
}
