package stream

import "sync/atomic"

// Slot holds the most recent encoded frame of one camera. A single pump
// writes it; any number of readers load it without locking. A reader sees
// either the previous or the next frame, never a partial one.
type Slot struct {
	frame atomic.Pointer[[]byte]
}

// Store replaces the current frame
func (s *Slot) Store(frame []byte) {
	s.frame.Store(&frame)
}

// Load returns the current frame or nil
func (s *Slot) Load() []byte {
	p := s.frame.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Clear drops the current frame
func (s *Slot) Clear() {
	s.frame.Store(nil)
}
