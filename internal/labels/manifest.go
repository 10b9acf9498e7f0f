package labels

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/tphakala/corpusprep/internal/errors"
)

// ClassRecord is one class declared by a manifest
type ClassRecord struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
}

// Manifest is an ordered list of class declarations
type Manifest []ClassRecord

// Lookup returns the name of class id
func (m Manifest) Lookup(id int) (string, bool) {
	for _, c := range m {
		if c.ID == id {
			return c.Name, true
		}
	}
	return "", false
}

// IDs returns the declared ids in manifest order
func (m Manifest) IDs() []int {
	ids := make([]int, len(m))
	for i, c := range m {
		ids[i] = c.ID
	}
	return ids
}

// Format renders the manifest as "<id>: '<name>'" lines
func (m Manifest) Format() []byte {
	var buf bytes.Buffer
	for _, c := range m {
		fmt.Fprintf(&buf, "%d: '%s'\n", c.ID, c.Name)
	}
	return buf.Bytes()
}

// IsDense reports whether the ids are exactly 0..len-1 in order
func (m Manifest) IsDense() bool {
	for i, c := range m {
		if c.ID != i {
			return false
		}
	}
	return true
}

// ParseManifest parses manifest lines of the form "<id>: <name>". The id and
// name are split at the first colon; the name is trimmed of surrounding
// whitespace and quotes. Lines without a colon, with a bad id, or repeating
// an earlier id are returned as Malformed and skipped.
func ParseManifest(r io.Reader) (Manifest, []Malformed, error) {
	var manifest Manifest
	var malformed []Malformed
	seen := make(map[int]struct{})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		idPart, namePart, found := strings.Cut(text, ":")
		if !found {
			malformed = append(malformed, Malformed{Line: lineNo, Text: text, Reason: "missing ':' delimiter"})
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(idPart))
		if err != nil || id < 0 {
			malformed = append(malformed, Malformed{Line: lineNo, Text: text, Reason: "class id is not a non-negative integer"})
			continue
		}
		if _, dup := seen[id]; dup {
			malformed = append(malformed, Malformed{Line: lineNo, Text: text, Reason: "duplicate class id"})
			continue
		}
		seen[id] = struct{}{}

		manifest = append(manifest, ClassRecord{ID: id, Name: cleanName(namePart)})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return manifest, malformed, nil
}

func cleanName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `'"`)
	return strings.TrimSpace(s)
}

// ReadManifest reads and parses the manifest at path
func ReadManifest(fsys afero.Fs, path string) (Manifest, []Malformed, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, nil, errors.New(err).
			Component("labels").
			Category(errors.CategoryFileIO).
			Context("operation", "open_manifest").
			FileContext(path).
			Build()
	}
	defer f.Close()

	m, malformed, err := ParseManifest(f)
	if err != nil {
		return nil, nil, errors.New(err).
			Component("labels").
			Category(errors.CategoryFileParsing).
			FileContext(path).
			Build()
	}
	return m, malformed, nil
}
