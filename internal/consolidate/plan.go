// Package consolidate merges rarely annotated classes of a detection corpus
// into one catch-all class and rewrites every label file to the new dense
// class numbering.
//
// A run has two strictly ordered phases. The counting phase reads the whole
// corpus and tallies annotations per class; only after it completes is the
// reindex plan built, because the rare/retained decision is corpus-wide.
// The rewrite phase then applies the plan file by file.
package consolidate

import (
	"maps"
	"slices"

	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/labels"
)

// DefaultRareName names the class that absorbs all rare classes
const DefaultRareName = "rare_species"

// ErrUnmappedClass is returned in strict mode when an annotation references
// a class the manifest does not declare
var ErrUnmappedClass = errors.NewStd("annotation references a class absent from the manifest")

// SupportCount maps an original class id to its number of annotation lines
type SupportCount map[int]int

// Add tallies lines
func (s SupportCount) Add(lines []labels.AnnotationLine) {
	for _, l := range lines {
		s[l.ClassID]++
	}
}

// Total returns the number of annotation lines counted
func (s SupportCount) Total() int {
	total := 0
	for _, n := range s {
		total += n
	}
	return total
}

// Count tallies the annotations of every file
func Count(files []*labels.LabelFile) SupportCount {
	support := make(SupportCount)
	for _, f := range files {
		support.Add(f.Lines)
	}
	return support
}

// ReindexMap maps original class ids to new class ids
type ReindexMap map[int]int

// Plan is the outcome of the partition and reindex steps
type Plan struct {
	Reindex  ReindexMap
	Manifest labels.Manifest
	RareID   int
	RareName string
	// Retained lists the original ids that keep their own class, ascending
	Retained []int
	// Rare lists the original ids merged into the rare class, ascending
	Rare []int
}

// Map returns the new id of an original class id
func (p *Plan) Map(id int) (int, bool) {
	newID, ok := p.Reindex[id]
	return newID, ok
}

// BuildPlan decides which classes are rare and assigns new ids.
//
// A class is rare when its support is strictly below minSupport; classes
// declared but never annotated have zero support. A manifest class already
// carrying rareName is merged into the rare class as well. Retained classes
// get ids 0..k-1 in ascending order of their original id and the rare class
// is appended as id k, so the same inputs always produce the same numbering.
func BuildPlan(manifest labels.Manifest, support SupportCount, minSupport int, rareName string) (*Plan, error) {
	if minSupport < 0 {
		return nil, errors.Newf("minimum support must be non-negative, got %d", minSupport).
			Component("consolidate").
			Category(errors.CategoryValidation).
			Build()
	}
	if rareName == "" {
		return nil, errors.Newf("rare class name must not be empty").
			Component("consolidate").
			Category(errors.CategoryValidation).
			Build()
	}

	names := make(map[int]string, len(manifest))
	for _, c := range manifest {
		if _, dup := names[c.ID]; !dup {
			names[c.ID] = c.Name
		}
	}

	plan := &Plan{
		Reindex:  make(ReindexMap, len(names)),
		RareName: rareName,
	}
	for _, id := range slices.Sorted(maps.Keys(names)) {
		if support[id] < minSupport || names[id] == rareName {
			plan.Rare = append(plan.Rare, id)
			continue
		}
		plan.Reindex[id] = len(plan.Retained)
		plan.Manifest = append(plan.Manifest, labels.ClassRecord{ID: len(plan.Retained), Name: names[id]})
		plan.Retained = append(plan.Retained, id)
	}

	plan.RareID = len(plan.Retained)
	for _, id := range plan.Rare {
		plan.Reindex[id] = plan.RareID
	}
	plan.Manifest = append(plan.Manifest, labels.ClassRecord{ID: plan.RareID, Name: rareName})
	return plan, nil
}

// Remap rewrites the class id of every line through the plan. Lines whose
// id is not in the plan are returned separately and left out of the result.
// Geometry tokens and line order are preserved.
func (p *Plan) Remap(lines []labels.AnnotationLine) (out, dropped []labels.AnnotationLine) {
	out = make([]labels.AnnotationLine, 0, len(lines))
	for _, l := range lines {
		newID, ok := p.Reindex[l.ClassID]
		if !ok {
			dropped = append(dropped, l)
			continue
		}
		out = append(out, labels.AnnotationLine{ClassID: newID, Fields: l.Fields})
	}
	return out, dropped
}

// Consolidate applies the whole pipeline to an in-memory corpus and returns
// the plan and the rewritten files, in input order. The input is not modified.
func Consolidate(manifest labels.Manifest, corpus []*labels.LabelFile, minSupport int, rareName string) (*Plan, []*labels.LabelFile, error) {
	support := Count(corpus)

	plan, err := BuildPlan(manifest, support, minSupport, rareName)
	if err != nil {
		return nil, nil, err
	}

	rewritten := make([]*labels.LabelFile, len(corpus))
	for i, f := range corpus {
		lines, _ := plan.Remap(f.Lines)
		rewritten[i] = &labels.LabelFile{Path: f.Path, Lines: lines}
	}
	return plan, rewritten, nil
}
