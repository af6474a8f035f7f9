package store

import "time"

// Run records one reconstruction run.
type Run struct {
	ID              int64
	RunID           string // uuid
	SourceDir       string
	DestDir         string
	Strategy        string
	DryRun          bool
	StartTime       time.Time
	EndTime         time.Time
	TotalFiles      int
	CopiedFiles     int
	SkippedDups     int
	SkippedMetadata int
	RenamedFiles    int
	Errors          int
	TotalBytes      int64
	CopiedBytes     int64
	Status          string // "running", "completed", "completed_with_errors", "failed", "cancelled"
	ErrorMessage    string
	ManifestPath    string
}

// CopiedFile records one file a run placed at a destination.
type CopiedFile struct {
	ID       int64
	RunDBID  int64
	Source   string
	Dest     string
	Size     int64
	SHA256   string
	Renamed  bool
	CopiedAt time.Time
}
