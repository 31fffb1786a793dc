package entity

import (
	"time"

	"github.com/elviscruz45/api-facturas-transmind/constants"
)

// FileDescriptor describes one archive member retained after
// irrelevance filtering. Produced by the archive-extraction
// collaborator; never mutated afterwards.
type FileDescriptor struct {
	OriginalName  string
	ExtractedPath string
	SizeBytes     int64
	MIMEType      string
	ModifiedTime  time.Time
}

// TimestampSource tags which source produced a resolved timestamp.
// Diagnostic only; downstream logic never branches on it.
type TimestampSource string

const (
	SourceWhatsAppName TimestampSource = "whatsapp_filename"
	SourceFilesystem   TimestampSource = "filesystem"
	SourceCurrentTime  TimestampSource = "current_time"
)

// IndexedFile is a descriptor with its chronological position.
// SequenceID is dense, 1-based, and strictly increasing in resolved
// timestamp order.
type IndexedFile struct {
	SequenceID        int        `json:"sequence_id"`
	Filename          string     `json:"filename"`
	OriginalTimestamp *time.Time `json:"original_timestamp,omitempty"`
	ResolvedTimestamp time.Time  `json:"resolved_timestamp"`
	FilePath          string     `json:"file_path"`
	FileSize          int64      `json:"file_size"`
}

// ClassifiedRecord is an indexed file with its semantic kind, sniffed
// media type and content hash.
type ClassifiedRecord struct {
	SequenceID  int                `json:"sequence_id"`
	Filename    string             `json:"filename"`
	Kind        constants.FileKind `json:"kind"`
	MIMEType    string             `json:"mime_type"`
	ContentHash string             `json:"content_hash"`
	FilePath    string             `json:"file_path"`
	FileSize    int64              `json:"file_size"`
}
