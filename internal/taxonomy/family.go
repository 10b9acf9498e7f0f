package taxonomy

import (
	"encoding/csv"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/logger"
)

// Reference table column names
const (
	SpeciesColumn = "species_scientific_name"
	FamilyColumn  = "Family"
)

// SpeciesFamilyMap maps normalized species names to family names
type SpeciesFamilyMap struct {
	families map[string]string
}

// NewSpeciesFamilyMap builds a map from raw species → family pairs.
// Keys are normalized; family values are trimmed.
func NewSpeciesFamilyMap(pairs map[string]string) *SpeciesFamilyMap {
	m := &SpeciesFamilyMap{families: make(map[string]string, len(pairs))}
	for _, species := range slices.Sorted(maps.Keys(pairs)) {
		m.add(species, pairs[species])
	}
	return m
}

// add inserts a pair, keeping an existing mapping. It reports whether the
// pair was new or identical to what was stored.
func (m *SpeciesFamilyMap) add(species, family string) (existing string, ok bool) {
	key := Normalize(species)
	family = strings.TrimSpace(family)
	if key == "" || family == "" {
		return "", true
	}
	if prev, found := m.families[key]; found {
		return prev, prev == family
	}
	m.families[key] = family
	return family, true
}

// Lookup returns the family of species
func (m *SpeciesFamilyMap) Lookup(species string) (string, bool) {
	if m == nil {
		return "", false
	}
	family, ok := m.families[Normalize(species)]
	return family, ok
}

// Len returns the number of species in the map
func (m *SpeciesFamilyMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.families)
}

// Families returns the distinct family names, sorted
func (m *SpeciesFamilyMap) Families() []string {
	if m == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(m.families))
	for _, f := range m.families {
		seen[f] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// LoadSpeciesFamilyMap reads the reference table at path
func LoadSpeciesFamilyMap(fsys afero.Fs, path string, log logger.Logger) (*SpeciesFamilyMap, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("taxonomy").
			Category(errors.CategoryFileIO).
			Context("operation", "open_reference_table").
			FileContext(path).
			Build()
	}
	defer f.Close()

	m, err := ParseSpeciesFamilyCSV(f, log)
	if err != nil {
		return nil, errors.New(err).
			Component("taxonomy").
			Context("path", path).
			Build()
	}
	return m, nil
}

// ParseSpeciesFamilyCSV reads a reference table with a header row holding
// at least the species and family columns. Rows missing either value are
// skipped. A species listed twice keeps its first family.
func ParseSpeciesFamilyCSV(r io.Reader, log logger.Logger) (*SpeciesFamilyMap, error) {
	if log == nil {
		log = GetLogger()
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Newf("read reference table header: %w", err).
			Component("taxonomy").
			Category(errors.CategoryFileParsing).
			Build()
	}

	speciesIdx, familyIdx := -1, -1
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch name {
		case SpeciesColumn:
			speciesIdx = i
		case FamilyColumn:
			familyIdx = i
		}
	}
	if speciesIdx < 0 || familyIdx < 0 {
		return nil, errors.Newf("reference table must have columns %q and %q", SpeciesColumn, FamilyColumn).
			Component("taxonomy").
			Category(errors.CategoryValidation).
			Context("header", strings.Join(header, ",")).
			Build()
	}

	m := &SpeciesFamilyMap{families: make(map[string]string)}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, errors.Newf("read reference table line %d: %w", line, err).
				Component("taxonomy").
				Category(errors.CategoryFileParsing).
				Build()
		}
		if speciesIdx >= len(record) || familyIdx >= len(record) {
			log.Debug("short reference table row skipped", logger.Int("line", line))
			continue
		}
		species, family := record[speciesIdx], record[familyIdx]
		if prev, ok := m.add(species, family); !ok {
			log.Warn("species listed with conflicting families, keeping first",
				logger.String("species", Normalize(species)),
				logger.String("kept", prev),
				logger.String("ignored", strings.TrimSpace(family)))
		}
	}

	log.Debug("reference table loaded",
		logger.Int("species", m.Len()),
		logger.Int("families", len(m.Families())))
	return m, nil
}
