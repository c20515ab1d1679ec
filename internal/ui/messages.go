package ui

import "github.com/bdougie/framegrab/internal/models"

// StateChangedMsg is sent after each session mutation.
type StateChangedMsg struct{}

// RefreshTickMsg triggers a redraw of the playback position.
type RefreshTickMsg struct{}

// ActionDoneMsg carries the outcome of a command run off the update loop.
type ActionDoneMsg struct {
	Notice string // shown on success
	Err    error
}

// SimilarFramesMsg carries the result of a similarity search.
type SimilarFramesMsg struct {
	FrameID string
	Results []models.SimilarFrame
	Err     error
}

// ClearNoticeMsg clears the transient notice.
type ClearNoticeMsg struct{}
