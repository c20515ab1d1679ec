package models

import "time"

// SampleVideoURL is the remote video offered as an alternative to a local file.
const SampleVideoURL = "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/BigBuckBunny.mp4"

// Image holds the two representations of one encoded still.
type Image struct {
	DataURL  string // renderable form
	Blob     []byte // binary form for persistence and clipboard
	MIMEType string
	Width    int
	Height   int
}

// CapturedFrame represents one sampled still
type CapturedFrame struct {
	ID          string
	Timestamp   float64 // playback position in seconds
	Image       Image
	Description string // empty until a description request completes
	Analyzing   bool
}

// Described reports whether a description has been attached.
func (f CapturedFrame) Described() bool {
	return f.Description != ""
}

// FrameRecord is the catalog row for a captured frame
type FrameRecord struct {
	ID          string    `json:"id"`
	Video       string    `json:"video"`
	Timestamp   float64   `json:"timestamp"`
	FileName    string    `json:"file_name"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Description string    `json:"description,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
}

// SimilarFrame represents one result of a similarity search
type SimilarFrame struct {
	ID          string
	Timestamp   float64
	FileName    string
	Description string
	Similarity  float64
}
