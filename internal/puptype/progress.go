package puptype

// ProgressEvent represents a progress update during loading or extraction.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Index is the entry currently being processed, if applicable.
	Index int

	// Path is the output path of the entry, if applicable.
	Path string

	// BytesDone is the number of bytes completed in the current operation.
	BytesDone uint64

	// BytesTotal is the total bytes for the current operation.
	// Zero indicates the total is unknown.
	BytesTotal uint64

	// EntriesDone is the number of entries completed.
	EntriesDone int

	// EntriesTotal is the total number of entries.
	EntriesTotal int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

// Progress stages for loading and extraction.
const (
	// StageReading indicates the container file is being read.
	StageReading ProgressStage = iota

	// StageParsing indicates the header and entry table are being decoded.
	StageParsing

	// StageScanning indicates the payload is being scanned for segments.
	StageScanning

	// StageExtracting indicates entries are being extracted.
	StageExtracting
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageReading:
		return "reading"
	case StageParsing:
		return "parsing"
	case StageScanning:
		return "scanning"
	case StageExtracting:
		return "extracting"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during operations.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)
