package pup

import "github.com/meigma/pup/internal/puptype"

// Re-export progress types.
type (
	// ProgressEvent represents a progress update during loading or extraction.
	ProgressEvent = puptype.ProgressEvent

	// ProgressStage identifies the current phase of an operation.
	ProgressStage = puptype.ProgressStage

	// ProgressFunc receives progress updates during operations.
	// Implementations must be safe for concurrent calls.
	ProgressFunc = puptype.ProgressFunc
)

// Re-export progress stage constants.
const (
	// StageReading indicates the container file is being read.
	StageReading = puptype.StageReading

	// StageParsing indicates the header and entry table are being decoded.
	StageParsing = puptype.StageParsing

	// StageScanning indicates the payload is being scanned for segments.
	StageScanning = puptype.StageScanning

	// StageExtracting indicates entries are being extracted.
	StageExtracting = puptype.StageExtracting
)
