// Package compare implements the before/after comparison split.
// A Slider holds only a 0-100 position and drag state; it knows nothing about jobs.
package compare

import (
	"sync"
)

// Point is a pointer position in terminal cells.
type Point struct {
	X, Y int
}

// Rect is the on-screen area of a rendered slider.
type Rect struct {
	X, Y, W, H int
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

// Image is one side of a comparison.
type Image struct {
	URL   string
	Label string
}

// Capture is the process-wide pointer subscription. While any holder exists
// the host delivers motion and release events from anywhere on screen.
type Capture struct {
	mu      sync.Mutex
	holders int
}

// Acquire registers a holder and returns its release function.
// Calling the release function more than once has no further effect.
func (c *Capture) Acquire() (release func()) {
	c.mu.Lock()
	c.holders++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.holders--
			c.mu.Unlock()
		})
	}
}

// Held reports whether any holder is active.
func (c *Capture) Held() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holders > 0
}

// Slider tracks the split position of one comparison.
type Slider struct {
	left, right Image
	capture     *Capture

	position float64
	bounds   Rect
	release  func() // non-nil exactly while dragging
}

// New creates a slider centered at 50. Missing labels default to
// "Original" and "Processed".
func New(left, right Image, capture *Capture) *Slider {
	if left.Label == "" {
		left.Label = "Original"
	}
	if right.Label == "" {
		right.Label = "Processed"
	}
	if capture == nil {
		capture = &Capture{}
	}
	return &Slider{left: left, right: right, capture: capture, position: 50}
}

func (s *Slider) Left() Image  { return s.left }
func (s *Slider) Right() Image { return s.right }

// Position returns the split in [0,100].
func (s *Slider) Position() float64 { return s.position }

// Dragging reports whether a drag is active.
func (s *Slider) Dragging() bool { return s.release != nil }

// Press begins a drag when p is inside bounds. The position is unchanged
// until the pointer moves.
func (s *Slider) Press(p Point, bounds Rect) bool {
	if !bounds.Contains(p) || bounds.W <= 0 {
		return false
	}
	s.bounds = bounds
	if s.release == nil {
		s.release = s.capture.Acquire()
	}
	return true
}

// Move updates the position while dragging, wherever the pointer is.
// Returns false when no drag is active.
func (s *Slider) Move(p Point) bool {
	if s.release == nil {
		return false
	}
	s.position = s.positionAt(p.X)
	return true
}

// Release ends the drag, if any.
func (s *Slider) Release() {
	if s.release != nil {
		s.release()
		s.release = nil
	}
}

// TouchStart begins a drag from the first touch point and jumps to it.
func (s *Slider) TouchStart(points []Point, bounds Rect) bool {
	if len(points) == 0 || !s.Press(points[0], bounds) {
		return false
	}
	return s.Move(points[0])
}

// TouchMove follows the first touch point.
func (s *Slider) TouchMove(points []Point) bool {
	if len(points) == 0 {
		return false
	}
	return s.Move(points[0])
}

// Nudge shifts the position by delta percentage points.
func (s *Slider) Nudge(delta float64) {
	s.position = clamp(s.position + delta)
}

// Close tears the slider down, releasing the capture if a drag was active.
func (s *Slider) Close() {
	s.Release()
}

func (s *Slider) positionAt(x int) float64 {
	if s.bounds.W <= 0 {
		return s.position
	}
	return clamp(float64(x-s.bounds.X) / float64(s.bounds.W) * 100)
}

func clamp(v float64) float64 {
	return min(max(v, 0), 100)
}
