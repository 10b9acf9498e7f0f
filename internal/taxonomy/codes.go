package taxonomy

import (
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/fsutil"
	"github.com/tphakala/corpusprep/internal/logger"
)

// DefaultSplits are the sub-folders of a species root scanned for class folders
var DefaultSplits = []string{"train", "val"}

// CodeResolver maps short codes to normalized species names
type CodeResolver struct {
	species map[string]string
}

// NewCodeResolver builds a resolver from raw code → species pairs
func NewCodeResolver(pairs map[string]string) *CodeResolver {
	r := &CodeResolver{species: make(map[string]string, len(pairs))}
	for _, code := range slices.Sorted(maps.Keys(pairs)) {
		r.add(code, pairs[code])
	}
	return r
}

func (r *CodeResolver) add(code, species string) (existing string, ok bool) {
	code = strings.TrimSpace(code)
	species = Normalize(species)
	if code == "" || species == "" {
		return "", true
	}
	if prev, found := r.species[code]; found {
		return prev, prev == species
	}
	r.species[code] = species
	return species, true
}

// Resolve returns the species name for code
func (r *CodeResolver) Resolve(code string) (string, bool) {
	if r == nil {
		return "", false
	}
	species, ok := r.species[strings.TrimSpace(code)]
	return species, ok
}

// Len returns the number of known codes
func (r *CodeResolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.species)
}

// Codes returns the known codes, sorted
func (r *CodeResolver) Codes() []string {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.species))
}

// ParseClassFolder splits a class folder name of the form "<code>-<species>"
// at its first hyphen. Hyphens in the species part stand for spaces.
func ParseClassFolder(name string) (code, species string, ok bool) {
	code, rest, found := strings.Cut(name, "-")
	code = strings.TrimSpace(code)
	species = Normalize(rest)
	if !found || code == "" || species == "" {
		return "", "", false
	}
	return code, species, true
}

// CodeFromFilename returns the short code of an image file name: the text
// before the first underscore, or the whole stem when there is none.
func CodeFromFilename(name string) string {
	base := filepath.Base(name)
	if code, _, found := strings.Cut(base, "_"); found {
		return code
	}
	// Names like "CAR.jpg" carry only the code. Any other stem will not
	// resolve and is reported as an unknown code.
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// BuildCodeResolver scans <speciesRoot>/<split>/ for class folders and
// builds the resolver. Missing split folders are skipped; an empty splits
// list scans speciesRoot itself. When two folders claim the same code, the
// first one scanned wins, splits in the order given and folders sorted
// within a split, and the conflict is logged.
func BuildCodeResolver(fsys afero.Fs, speciesRoot string, splits []string, log logger.Logger) (*CodeResolver, error) {
	if log == nil {
		log = GetLogger()
	}
	if !fsutil.DirExists(fsys, speciesRoot) {
		return nil, errors.Newf("species root %s does not exist", speciesRoot).
			Component("taxonomy").
			Category(errors.CategoryFileIO).
			Context("path", speciesRoot).
			Build()
	}

	roots := []string{speciesRoot}
	if len(splits) > 0 {
		roots = roots[:0]
		for _, s := range splits {
			roots = append(roots, filepath.Join(speciesRoot, s))
		}
	}

	r := &CodeResolver{species: make(map[string]string)}
	for _, root := range roots {
		if !fsutil.DirExists(fsys, root) {
			log.Debug("split folder missing, skipped", logger.String("path", root))
			continue
		}
		dirs, err := fsutil.ListDirs(fsys, root)
		if err != nil {
			return nil, err
		}
		for _, dir := range dirs {
			code, species, ok := ParseClassFolder(dir)
			if !ok {
				log.Debug("folder without code prefix ignored", logger.String("folder", dir))
				continue
			}
			if prev, ok := r.add(code, species); !ok {
				log.Warn("code claimed by more than one species, keeping first",
					logger.String("code", code),
					logger.String("kept", prev),
					logger.String("ignored", species))
			}
		}
	}

	log.Debug("code resolver built", logger.Int("codes", r.Len()))
	return r, nil
}
