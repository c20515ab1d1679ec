package models

import (
	"path/filepath"
	"strings"
)

// SourceKind tags a VideoSource variant.
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceLocal
	SourceRemote
)

func (k SourceKind) String() string {
	switch k {
	case SourceLocal:
		return "local"
	case SourceRemote:
		return "remote"
	default:
		return "none"
	}
}

// VideoSource is the active video: absent, a local file or a remote URL.
// The zero value is the absent variant.
type VideoSource struct {
	kind     SourceKind
	location string
}

// NoVideo returns the absent variant.
func NoVideo() VideoSource {
	return VideoSource{}
}

// LocalVideo returns a source backed by a file on disk.
func LocalVideo(path string) VideoSource {
	return VideoSource{kind: SourceLocal, location: path}
}

// RemoteVideo returns a source loaded verbatim from a URL.
func RemoteVideo(url string) VideoSource {
	return VideoSource{kind: SourceRemote, location: url}
}

// ParseVideoSource picks the variant from the shape of the input.
func ParseVideoSource(s string) VideoSource {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return NoVideo()
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return RemoteVideo(s)
	default:
		return LocalVideo(s)
	}
}

func (v VideoSource) Kind() SourceKind {
	return v.kind
}

// Location returns the path or URL, and false for the absent variant.
func (v VideoSource) Location() (string, bool) {
	if v.kind == SourceNone {
		return "", false
	}
	return v.location, true
}

// Name is a short display name, the file name without extension for local
// videos and the last URL segment for remote ones.
func (v VideoSource) Name() string {
	loc, ok := v.Location()
	if !ok {
		return ""
	}
	if v.kind == SourceRemote {
		loc = strings.SplitN(loc, "?", 2)[0]
		loc = loc[strings.LastIndex(loc, "/")+1:]
	} else {
		loc = filepath.Base(loc)
	}
	return strings.TrimSuffix(loc, filepath.Ext(loc))
}
