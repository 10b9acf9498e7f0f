package datastore

import (
	"context"
	"slices"
	"strings"

	"github.com/tphakala/corpusprep/internal/errors"
)

// AssignmentChange is a file assigned to different subsets by two runs
type AssignmentChange struct {
	GroupName string
	File      string
	First     string
	Second    string
}

// SplitDiff is the difference between the assignments of two split runs.
// Keys in OnlyInFirst and OnlyInSecond are "<group>/<file>".
type SplitDiff struct {
	Changed      []AssignmentChange
	OnlyInFirst  []string
	OnlyInSecond []string
}

// Identical reports whether both runs assigned the same files to the same subsets
func (d *SplitDiff) Identical() bool {
	return len(d.Changed) == 0 && len(d.OnlyInFirst) == 0 && len(d.OnlyInSecond) == 0
}

// CompareSplits compares the assignments of two recorded split runs
func (s *Store) CompareSplits(ctx context.Context, first, second string) (*SplitDiff, error) {
	a, err := s.GetRun(ctx, first)
	if err != nil {
		return nil, err
	}
	b, err := s.GetRun(ctx, second)
	if err != nil {
		return nil, err
	}
	for _, r := range []*Run{a, b} {
		if len(r.Assignments) == 0 && len(r.Placements) > 0 {
			return nil, errors.Newf("run %s of %s has no split assignments", r.UUID, r.Command).
				Component("datastore").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	return diffAssignments(a.Assignments, b.Assignments), nil
}

func diffAssignments(first, second []Assignment) *SplitDiff {
	key := func(a Assignment) string { return a.GroupName + "/" + a.File }

	inSecond := make(map[string]Assignment, len(second))
	for _, a := range second {
		inSecond[key(a)] = a
	}

	diff := &SplitDiff{}
	seen := make(map[string]struct{}, len(first))
	for _, a := range first {
		k := key(a)
		seen[k] = struct{}{}
		b, ok := inSecond[k]
		switch {
		case !ok:
			diff.OnlyInFirst = append(diff.OnlyInFirst, k)
		case a.Subset != b.Subset:
			diff.Changed = append(diff.Changed, AssignmentChange{
				GroupName: a.GroupName,
				File:      a.File,
				First:     a.Subset,
				Second:    b.Subset,
			})
		}
	}
	for _, b := range second {
		if _, ok := seen[key(b)]; !ok {
			diff.OnlyInSecond = append(diff.OnlyInSecond, key(b))
		}
	}

	slices.Sort(diff.OnlyInFirst)
	slices.Sort(diff.OnlyInSecond)
	slices.SortFunc(diff.Changed, func(x, y AssignmentChange) int {
		if c := strings.Compare(x.GroupName, y.GroupName); c != 0 {
			return c
		}
		return strings.Compare(x.File, y.File)
	})
	return diff
}
