// Package metrics provides constants used across metric definitions.
package metrics

// Command label values
const (
	CommandConsolidate = "consolidate"
	CommandSplit       = "split"
	CommandReorganize  = "reorganize"
	CommandFamily      = "family"
)

// Status label values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// File outcome label values
const (
	// FileProcessed is a file the command looked at.
	FileProcessed = "processed"
	// FilePlaced is a file copied or moved into a group or subset folder.
	FilePlaced = "placed"
	// FileRewritten is a label file whose content changed.
	FileRewritten = "rewritten"
	// FileUnchanged is a label file left as it was.
	FileUnchanged = "unchanged"
	// FileUnresolved is a record that could not be routed.
	FileUnresolved = "unresolved"
)

// Annotation outcome label values
const (
	AnnotationRead      = "read"
	AnnotationWritten   = "written"
	AnnotationDropped   = "dropped"
	AnnotationMalformed = "malformed"
)

// Histogram bucket layout for run durations
const (
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~80s range).
	BucketStart10ms = 0.01
	// BucketFactor2 is the exponential growth factor of the buckets.
	BucketFactor2 = 2
	// BucketCount14 defines 14 exponential buckets.
	BucketCount14 = 14
)
