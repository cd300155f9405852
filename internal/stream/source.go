package stream

import (
	"image"
	"sync"

	"github.com/blackmouse572/skin-doctor/internal/imageio"
)

// FrameSource holds the latest frame received from a client. It satisfies
// detection.Source.
type FrameSource struct {
	mu        sync.RWMutex
	frame     image.Image
	ready     chan struct{}
	readyOnce sync.Once
}

// NewFrameSource returns an empty source.
func NewFrameSource() *FrameSource {
	return &FrameSource{ready: make(chan struct{})}
}

// Push replaces the current frame. The first non-empty frame marks the source ready.
func (s *FrameSource) Push(frame image.Image) {
	if frame == nil {
		return
	}
	s.mu.Lock()
	s.frame = frame
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
}

// PushEncoded decodes a JPEG, PNG, WebP or BMP payload and pushes it.
func (s *FrameSource) PushEncoded(data []byte) error {
	frame, err := imageio.DecodeBytes(data)
	if err != nil {
		return err
	}
	s.Push(frame)
	return nil
}

// Dimensions implements detection.Source.
func (s *FrameSource) Dimensions() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return 0, 0
	}
	b := s.frame.Bounds()
	return b.Dx(), b.Dy()
}

// HasEnoughData implements detection.Source.
func (s *FrameSource) HasEnoughData() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame != nil
}

// Frame implements detection.Source.
func (s *FrameSource) Frame() image.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// Ready implements detection.Source.
func (s *FrameSource) Ready() <-chan struct{} {
	return s.ready
}
