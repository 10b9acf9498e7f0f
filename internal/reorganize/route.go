// Package reorganize routes a flat folder of corpus images into group
// folders. A record's short code is resolved to a species through the code
// resolver and, when grouping by family, the species to its family through
// the reference table.
package reorganize

import (
	"strings"

	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/taxonomy"
)

// GroupBy selects the grouping key of the output folders
type GroupBy string

const (
	// ByFamily groups records by taxonomic family
	ByFamily GroupBy = "family"
	// BySpecies groups records by species, in "<code>-<species>" folders
	BySpecies GroupBy = "species"
)

// ParseGroupBy converts a configuration value into a GroupBy
func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(strings.ToLower(strings.TrimSpace(s))); g {
	case ByFamily, BySpecies:
		return g, nil
	}
	return "", errors.Newf("invalid group-by key %q: must be %s or %s", s, ByFamily, BySpecies).
		Component("reorganize").
		Category(errors.CategoryValidation).
		Build()
}

// Reason explains why a record could not be routed
type Reason string

const (
	ReasonUnknownCode  Reason = "unknown code"
	ReasonUnknownGroup Reason = "unknown group membership"
)

// Outcome is the result of routing one record. Group is empty when the
// record is unresolved.
type Outcome struct {
	Code    string
	Species string
	Group   string
	Reason  Reason
}

// Resolved reports whether the record has a destination group
func (o Outcome) Resolved() bool {
	return o.Reason == "" && o.Group != ""
}

// SpeciesGroup returns the folder name of a species group, following the
// "<code>-<species with hyphens>" class folder convention
func SpeciesGroup(code, species string) string {
	return code + "-" + strings.ReplaceAll(taxonomy.Normalize(species), " ", "-")
}

// Route resolves the destination group of the record named name. families
// may be nil when grouping by species.
func Route(name string, codes *taxonomy.CodeResolver, families *taxonomy.SpeciesFamilyMap, by GroupBy) Outcome {
	out := Outcome{Code: taxonomy.CodeFromFilename(name)}

	species, ok := codes.Resolve(out.Code)
	if !ok {
		out.Reason = ReasonUnknownCode
		return out
	}
	out.Species = species

	if by == BySpecies {
		out.Group = SpeciesGroup(out.Code, species)
		return out
	}

	family, ok := families.Lookup(species)
	if !ok || !validFolderName(family) {
		out.Reason = ReasonUnknownGroup
		return out
	}
	out.Group = family
	return out
}

// validFolderName rejects family names that would escape the output root
func validFolderName(name string) bool {
	return name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
