// Package session holds the single source of truth for the capture UI and
// the capture loop: the loaded video, the capture flag, the sampling
// interval, the captured frames and the persistence target.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bdougie/framegrab/internal/models"
	"github.com/bdougie/framegrab/internal/persist"
)

const (
	MinInterval     = 1
	MaxInterval     = 60
	DefaultInterval = 30
)

var (
	ErrNoVideo        = errors.New("no video loaded")
	ErrIntervalRange  = fmt.Errorf("interval must be between %d and %d frames", MinInterval, MaxInterval)
	ErrCaptureActive  = errors.New("folder cannot change while capturing")
	ErrDuplicateFrame = errors.New("frame id already present")
)

// Snapshot is an immutable copy of the state at one version.
type Snapshot struct {
	Version       uint64
	Video         models.VideoSource
	Capturing     bool
	Interval      int
	Frames        []models.CapturedFrame // newest first
	CapturedCount int
	TargetName    string // empty in gallery-only mode
}

// AnalyzedCount is the number of frames carrying a description.
func (s Snapshot) AnalyzedCount() int {
	n := 0
	for _, f := range s.Frames {
		if f.Described() {
			n++
		}
	}
	return n
}

// HasVideo reports whether a video is loaded.
func (s Snapshot) HasVideo() bool {
	_, ok := s.Video.Location()
	return ok
}

// target is the optional persistence target; granted is false in
// gallery-only mode.
type target struct {
	dir     persist.Target
	granted bool
}

// State is safe for concurrent use. Every mutation bumps the version and
// wakes subscribers.
type State struct {
	mu        sync.RWMutex
	version   uint64
	video     models.VideoSource
	capturing bool
	interval  int
	frames    []models.CapturedFrame
	count     int
	target    target

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}
}

// New creates the state for one program run.
func New(interval int) *State {
	if interval < MinInterval || interval > MaxInterval {
		interval = DefaultInterval
	}
	return &State{
		interval: interval,
		subs:     make(map[chan struct{}]struct{}),
	}
}

// Subscribe returns a channel that receives a value after each mutation.
// Notifications coalesce; read Snapshot for the current state. Call the
// returned func to unsubscribe.
func (s *State) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		delete(s.subs, ch)
		s.subMu.Unlock()
	}
}

// changed must be called with mu held for writing.
func (s *State) changed() {
	s.version++
	s.subMu.Lock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.subMu.Unlock()
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	frames := make([]models.CapturedFrame, len(s.frames))
	copy(frames, s.frames)

	snap := Snapshot{
		Version:       s.version,
		Video:         s.video,
		Capturing:     s.capturing,
		Interval:      s.interval,
		Frames:        frames,
		CapturedCount: s.count,
	}
	if s.target.granted {
		snap.TargetName = s.target.dir.Name()
	}
	return snap
}

// LoadVideo makes src the active video and resets the capture session:
// frames are cleared, the count is zeroed and capturing is forced off.
func (s *State) LoadVideo(src models.VideoSource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.video = src
	s.frames = nil
	s.count = 0
	s.capturing = false
	s.changed()
}

// Video returns the active video source.
func (s *State) Video() models.VideoSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.video
}

// SetCapturing sets the capture flag and reports whether it changed.
func (s *State) SetCapturing(on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capturing == on {
		return false
	}
	s.capturing = on
	s.changed()
	return true
}

func (s *State) Capturing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capturing
}

// SetInterval changes the number of elapsed frames between captures. It
// applies to a running capture on its next tick.
func (s *State) SetInterval(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.video.Kind() == models.SourceNone {
		return ErrNoVideo
	}
	if n < MinInterval || n > MaxInterval {
		return ErrIntervalRange
	}
	if s.interval != n {
		s.interval = n
		s.changed()
	}
	return nil
}

func (s *State) Interval() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval
}

// AppendFrame puts f at the front of the gallery and counts it.
func (s *State) AppendFrame(f models.CapturedFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(f.ID) >= 0 {
		return fmt.Errorf("append frame %s: %w", f.ID, ErrDuplicateFrame)
	}
	s.frames = append([]models.CapturedFrame{f}, s.frames...)
	s.count++
	s.changed()
	return nil
}

// DeleteFrame removes the frame with id and decrements the count. It
// reports false, changing nothing, when id is not present.
func (s *State) DeleteFrame(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.frames = append(s.frames[:i:i], s.frames[i+1:]...)
	if s.count > 0 {
		s.count--
	}
	s.changed()
	return true
}

// Frame returns the frame with id.
func (s *State) Frame(id string) (models.CapturedFrame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.CapturedFrame{}, false
	}
	return s.frames[i], true
}

// SetTarget selects the folder captured frames are saved into. The folder
// is locked while capturing.
func (s *State) SetTarget(t persist.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capturing {
		return ErrCaptureActive
	}
	s.target = target{dir: t, granted: t != nil}
	s.changed()
	return nil
}

// ClearTarget returns to gallery-only mode.
func (s *State) ClearTarget() error {
	return s.SetTarget(nil)
}

// Target returns the persistence target and false in gallery-only mode.
func (s *State) Target() (persist.Target, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target.dir, s.target.granted
}

// BeginAnalysis marks the frame as analyzing and returns it. It refuses,
// returning false, when the frame is missing, already analyzing or already
// described, so at most one request per frame is outstanding.
func (s *State) BeginAnalysis(id string) (models.CapturedFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.CapturedFrame{}, false
	}
	f := &s.frames[i]
	if f.Analyzing || f.Described() {
		return models.CapturedFrame{}, false
	}
	f.Analyzing = true
	s.changed()
	return *f, true
}

// CompleteAnalysis attaches the description and clears the analyzing flag.
// It reports false when the frame was deleted in the meantime.
func (s *State) CompleteAnalysis(id, description string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.frames[i].Analyzing = false
	s.frames[i].Description = description
	s.changed()
	return true
}

func (s *State) indexOf(id string) int {
	for i := range s.frames {
		if s.frames[i].ID == id {
			return i
		}
	}
	return -1
}
