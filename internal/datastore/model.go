// model.go this code defines the data model of the run ledger
package datastore

import "time"

// Run status values
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Run is one invocation of a corpusprep command
type Run struct {
	ID      uint   `gorm:"primaryKey"`
	UUID    string `gorm:"uniqueIndex;size:36;not null"`
	Command string `gorm:"index;not null"`
	// Seed holds the bits of the uint64 shuffle seed; see SeedValue
	Seed       int64
	Ratio      float64
	Policy     string
	Mode       string
	Source     string // corpus root, source folder or label folder
	Output     string // output root or output manifest
	Status     string `gorm:"type:varchar(16)"`
	Error      string
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time

	Assignments   []Assignment   `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
	ClassMappings []ClassMapping `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
	Placements    []Placement    `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// SeedValue returns the seed as it was configured
func (r *Run) SeedValue() uint64 {
	return uint64(r.Seed) //nolint:gosec // bit-preserving round trip of SetSeed
}

// SetSeed stores seed. SQLite integers are signed, so the bits are kept as is.
func (r *Run) SetSeed(seed uint64) {
	r.Seed = int64(seed) //nolint:gosec // bit-preserving, reversed by SeedValue
}

// Assignment places one file of a group in a split subset
type Assignment struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     uint   `gorm:"index;not null"`
	GroupName string `gorm:"index:idx_assignments_group_file"`
	File      string `gorm:"index:idx_assignments_group_file"`
	Subset    string `gorm:"type:varchar(32)"`
}

// ClassMapping records where a manifest class went during consolidation
type ClassMapping struct {
	ID      uint `gorm:"primaryKey"`
	RunID   uint `gorm:"index;not null"`
	OldID   int
	NewID   int
	Name    string // name of the class the old id now belongs to
	Support int
	Rare    bool
}

// Placement records the group folder an image was routed to
type Placement struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     uint   `gorm:"index;not null"`
	File      string
	GroupName string `gorm:"index"`
}
