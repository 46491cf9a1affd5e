package kinectfilter

import "sync"

// FrameSlot is a single-frame mailbox between a sensor callback and the
// processing loop. The producer overwrites, the consumer polls: when the
// consumer is slower than the sensor, intermediate frames are silently
// replaced and only the most recent one is processed (latest-wins).
//
// Push and TryTake only ever hold the mutex for a field swap, so the
// driver callback returns quickly regardless of consumer speed.
type FrameSlot struct {
	mu sync.Mutex

	frame   Frame
	hasData bool
	closed  bool

	// Drop accounting. A drop is a Push that overwrites a frame the
	// consumer never took.
	totalDrops       uint64
	consecutiveDrops uint64
	lastSeq          uint64
}

// SlotStats is a snapshot of FrameSlot drop accounting.
type SlotStats struct {
	// TotalDrops counts frames overwritten before being consumed.
	TotalDrops uint64

	// ConsecutiveDrops counts drops since the last successful TryTake.
	// A persistently growing value means the consumer has stalled.
	ConsecutiveDrops uint64

	// LastSeq is the sequence number of the most recently pushed frame.
	LastSeq uint64
}

// NewFrameSlot creates an empty FrameSlot.
func NewFrameSlot() *FrameSlot {
	return &FrameSlot{}
}

// Push stores f as the pending frame, replacing any unconsumed one.
// It never blocks beyond the field swap. Push after Close is a no-op.
//
// Push takes ownership of f.Data; the caller must not reuse the slice.
func (s *FrameSlot) Push(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if s.hasData {
		s.totalDrops++
		s.consecutiveDrops++
		Logger().Debug("frameslot: overwrote unconsumed frame",
			"dropped_seq", s.frame.Seq,
			"new_seq", f.Seq,
			"consecutive_drops", s.consecutiveDrops)
	}

	s.frame = f
	s.hasData = true
	s.lastSeq = f.Seq
}

// TryTake moves the pending frame into dst and reports whether one was
// available. A false return means no new frame has arrived since the
// last take; that is the normal idle outcome, not an error.
//
// On success the payload is moved, not copied: the slot gives up its
// reference to the Data slice.
func (s *FrameSlot) TryTake(dst *Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasData {
		return false
	}

	*dst = s.frame
	s.frame = Frame{}
	s.hasData = false
	s.consecutiveDrops = 0
	return true
}

// Stats returns a snapshot of the slot's drop counters.
func (s *FrameSlot) Stats() SlotStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SlotStats{
		TotalDrops:       s.totalDrops,
		ConsecutiveDrops: s.consecutiveDrops,
		LastSeq:          s.lastSeq,
	}
}

// Close stops the slot from accepting new pushes. A frame already in the
// slot stays available to TryTake so an in-flight hand-off can finish.
// Close is idempotent.
func (s *FrameSlot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
