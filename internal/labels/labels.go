// Package labels reads and writes the text formats of a detection corpus:
// per-image label files and the class manifest.
//
// A label line is "<class id> <geometry tokens...>". The geometry tokens are
// opaque and are written back verbatim in their original order.
package labels

import (
	"bufio"
	"bytes"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/fsutil"
)

// LabelExt is the extension of label files
const LabelExt = ".txt"

// maxLineLength bounds a single label or manifest line
const maxLineLength = 1024 * 1024

// AnnotationLine is one detection entry of a label file
type AnnotationLine struct {
	ClassID int
	Fields  []string
}

// String formats the line as written to disk, without a line terminator
func (l AnnotationLine) String() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(l.ClassID))
	for _, f := range l.Fields {
		sb.WriteByte(' ')
		sb.WriteString(f)
	}
	return sb.String()
}

// LabelFile is the parsed content of one label file
type LabelFile struct {
	Path  string
	Lines []AnnotationLine
}

// Malformed describes an input line that was skipped
type Malformed struct {
	Line   int    `yaml:"line"`
	Text   string `yaml:"text"`
	Reason string `yaml:"reason"`
}

// ParseLabel parses label lines from r. Blank lines are ignored. Lines whose
// first token is not a non-negative integer are returned as Malformed and
// left out of the result.
func ParseLabel(r io.Reader) ([]AnnotationLine, []Malformed, error) {
	var lines []AnnotationLine
	var malformed []Malformed

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		tokens := strings.Fields(scanner.Text())
		if len(tokens) == 0 {
			continue
		}
		id, err := strconv.Atoi(tokens[0])
		if err != nil || id < 0 {
			malformed = append(malformed, Malformed{
				Line:   lineNo,
				Text:   strings.TrimSpace(scanner.Text()),
				Reason: "class id is not a non-negative integer",
			})
			continue
		}
		lines = append(lines, AnnotationLine{ClassID: id, Fields: tokens[1:]})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return lines, malformed, nil
}

// FormatLabel renders lines in label file format. An empty slice renders
// as an empty file.
func FormatLabel(lines []AnnotationLine) []byte {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// ReadLabelFile reads and parses the label file at path
func ReadLabelFile(fsys afero.Fs, path string) (*LabelFile, []Malformed, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, nil, errors.FileError(err, path)
	}
	defer f.Close()

	lines, malformed, err := ParseLabel(f)
	if err != nil {
		return nil, nil, errors.New(err).
			Component("labels").
			Category(errors.CategoryFileParsing).
			FileContext(path).
			Build()
	}
	return &LabelFile{Path: path, Lines: lines}, malformed, nil
}

// ListLabelFiles returns the names of label files directly inside dir,
// sorted. Names listed in exclude are left out.
func ListLabelFiles(fsys afero.Fs, dir string, exclude ...string) ([]string, error) {
	return fsutil.ListFiles(fsys, dir, func(name string) bool {
		if strings.HasPrefix(name, fsutil.HiddenPrefix) || !strings.EqualFold(filepath.Ext(name), LabelExt) {
			return false
		}
		return !slices.Contains(exclude, name)
	})
}
