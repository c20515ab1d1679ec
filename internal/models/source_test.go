package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVideoSourceVariants(t *testing.T) {
	none := NoVideo()
	_, ok := none.Location()
	assert.False(t, ok)
	assert.Equal(t, SourceNone, none.Kind())
	assert.Equal(t, "", none.Name())

	local := ParseVideoSource("  /videos/holiday.mp4 ")
	loc, ok := local.Location()
	assert.True(t, ok)
	assert.Equal(t, SourceLocal, local.Kind())
	assert.Equal(t, "/videos/holiday.mp4", loc)
	assert.Equal(t, "holiday", local.Name())

	remote := ParseVideoSource(SampleVideoURL)
	assert.Equal(t, SourceRemote, remote.Kind())
	assert.Equal(t, "BigBuckBunny", remote.Name())

	assert.Equal(t, SourceNone, ParseVideoSource("").Kind())
}

func TestCapturedFrameDescribed(t *testing.T) {
	f := CapturedFrame{ID: "a"}
	assert.False(t, f.Described())
	f.Description = "a rabbit"
	assert.True(t, f.Described())
}
