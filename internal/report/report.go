// Package report renders the outcome of a corpusprep run: a console summary,
// a YAML document for later inspection and an optional HTML chart page.
package report

import (
	"bytes"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/corpusprep/internal/consolidate"
	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/fsutil"
	"github.com/tphakala/corpusprep/internal/labels"
	"github.com/tphakala/corpusprep/internal/logger"
	"github.com/tphakala/corpusprep/internal/reorganize"
	"github.com/tphakala/corpusprep/internal/split"
)

// Document is the YAML report of one run. Only the sections of the engines
// the command ran are present.
type Document struct {
	RunID         string             `yaml:"run_id"`
	Command       string             `yaml:"command"`
	Started       time.Time          `yaml:"started"`
	Seed          *uint64            `yaml:"seed,omitempty"`
	Ratio         float64            `yaml:"ratio,omitempty"`
	Reorganize    *reorganize.Report `yaml:"reorganize,omitempty"`
	Split         *split.Result      `yaml:"split,omitempty"`
	Consolidation *Consolidation     `yaml:"consolidation,omitempty"`
	Error         string             `yaml:"error,omitempty"`
}

// Consolidation extends the consolidation report with the plan: which ids
// were merged and where every original id went
type Consolidation struct {
	consolidate.Report `yaml:",inline"`

	RareID      int             `yaml:"rare_id"`
	RareName    string          `yaml:"rare_name"`
	RareClasses []int           `yaml:"rare_classes"`
	Mapping     map[int]int     `yaml:"mapping"`
	Manifest    labels.Manifest `yaml:"manifest"`
}

// NewDocument starts a report for the run
func NewDocument(runID, command string) *Document {
	return &Document{RunID: runID, Command: command, Started: time.Now()}
}

// SetSplit attaches a split result and the parameters that produced it
func (d *Document) SetSplit(result *split.Result, seed uint64, ratio float64) {
	d.Split = result
	d.Seed = &seed
	d.Ratio = ratio
}

// SetConsolidation attaches a consolidation report. A report without a plan
// (strict mode abort) keeps only its counts.
func (d *Document) SetConsolidation(r *consolidate.Report) {
	if r == nil {
		return
	}
	c := &Consolidation{Report: *r}
	if p := r.Plan; p != nil {
		c.RareID = p.RareID
		c.RareName = p.RareName
		c.RareClasses = p.Rare
		c.Mapping = p.Reindex
		c.Manifest = p.Manifest
	}
	d.Consolidation = c
}

// SetError records the error that ended the run
func (d *Document) SetError(err error) {
	if err != nil {
		d.Error = err.Error()
	}
}

// Marshal encodes the document as YAML
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, errors.New(err).
			Component("report").
			Category(errors.CategoryProcessing).
			Context("operation", "encode-yaml").
			Build()
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteYAML writes the document to path, creating parent folders
func WriteYAML(fsys afero.Fs, path string, d *Document) error {
	data, err := d.Marshal()
	if err != nil {
		return err
	}
	if err := fsutil.EnsureDir(fsys, filepath.Dir(path)); err != nil {
		return err
	}
	if err := fsutil.AtomicWriteFile(fsys, path, data, fsutil.FilePermissions); err != nil {
		return err
	}
	GetLogger().Debug("report written", logger.String("path", path))
	return nil
}
