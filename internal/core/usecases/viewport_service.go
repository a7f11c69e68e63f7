package usecases

import (
	"log/slog"
	"sync"
	"time"

	"github.com/suntrack/fleetmap/internal/core/domain"
	"github.com/suntrack/fleetmap/internal/pkg/metrics"
)

// ViewportState is the interaction phase of the camera.
type ViewportState int

const (
	StateIdle ViewportState = iota
	StatePanning
	StateZooming
	StateAnimating
)

func (s ViewportState) String() string {
	switch s {
	case StatePanning:
		return "panning"
	case StateZooming:
		return "zooming"
	case StateAnimating:
		return "animating"
	default:
		return "idle"
	}
}

// ViewportService owns pan/zoom/animation state over the projected plane.
// Transitions: Idle -> Panning -> Idle, Idle -> Zooming -> Idle,
// Idle -> Animating -> Idle. Any user input cancels a running animation;
// there is no animation queue.
type ViewportService struct {
	mu sync.Mutex

	viewport domain.Viewport
	initial  domain.Viewport
	minZoom  float64
	maxZoom  float64

	state ViewportState
	anim  animation

	onChange func(domain.ViewportChange)
}

type animation struct {
	fromOrigin domain.ProjectedPoint
	toOrigin   domain.ProjectedPoint
	fromScale  float64
	toScale    float64
	start      time.Time
	duration   time.Duration
}

// NewViewportService creates a camera over the projected plane starting
// at the configured initial viewport.
func NewViewportService(initial domain.Viewport, minZoom, maxZoom float64) *ViewportService {
	if initial.Scale < minZoom {
		initial.Scale = minZoom
	}
	if initial.Scale > maxZoom {
		initial.Scale = maxZoom
	}
	return &ViewportService{
		viewport: initial,
		initial:  initial,
		minZoom:  minZoom,
		maxZoom:  maxZoom,
		state:    StateIdle,
	}
}

// OnChange registers the single change listener. Every notification
// carries the origin of the input that produced it.
func (s *ViewportService) OnChange(fn func(domain.ViewportChange)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Viewport returns the current camera state.
func (s *ViewportService) Viewport() domain.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// State returns the current interaction phase.
func (s *ViewportService) State() ViewportState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BeginPan enters the panning phase, cancelling any running animation.
func (s *ViewportService) BeginPan(origin domain.Origin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelAnimationLocked(origin)
	s.state = StatePanning
}

// PanBy translates the camera by a screen-pixel drag delta. The delta is
// divided by the current scale first, which keeps dragging
// resolution-independent: one screen pixel always moves the map one
// screen pixel regardless of zoom.
func (s *ViewportService) PanBy(dxScreen, dyScreen float64, origin domain.Origin) {
	s.mu.Lock()
	s.cancelAnimationLocked(origin)
	s.state = StatePanning
	s.viewport.OriginX -= dxScreen / s.viewport.Scale
	s.viewport.OriginY -= dyScreen / s.viewport.Scale
	metrics.ViewportOps.WithLabelValues("pan").Inc()
	fn, ch := s.changeLocked(origin)
	s.mu.Unlock()
	emit(fn, ch)
}

// EndPan returns to idle.
func (s *ViewportService) EndPan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePanning {
		s.state = StateIdle
	}
}

// ZoomAt rescales the camera keeping the plane point under the cursor
// fixed on screen. newScale is clamped to [minZoom, maxZoom].
func (s *ViewportService) ZoomAt(newScale float64, cursor domain.ProjectedPoint, origin domain.Origin) {
	s.mu.Lock()
	s.cancelAnimationLocked(origin)

	newScale = clamp(newScale, s.minZoom, s.maxZoom)
	oldScale := s.viewport.Scale
	if newScale == oldScale {
		s.mu.Unlock()
		return
	}

	s.state = StateZooming
	ratio := oldScale / newScale
	s.viewport.OriginX = cursor.X - (cursor.X-s.viewport.OriginX)*ratio
	s.viewport.OriginY = cursor.Y - (cursor.Y-s.viewport.OriginY)*ratio
	s.viewport.Width *= ratio
	s.viewport.Height *= ratio
	s.viewport.Scale = newScale
	s.state = StateIdle
	metrics.ViewportOps.WithLabelValues("zoom").Inc()
	fn, ch := s.changeLocked(origin)
	s.mu.Unlock()
	emit(fn, ch)
}

// SetCamera replaces origin and scale wholesale. Used by the tile
// renderer bridge when its own gestures move the native camera.
func (s *ViewportService) SetCamera(originX, originY, scale float64, origin domain.Origin) {
	s.mu.Lock()
	s.cancelAnimationLocked(origin)

	scale = clamp(scale, s.minZoom, s.maxZoom)
	ratio := s.viewport.Scale / scale
	s.viewport.OriginX = originX
	s.viewport.OriginY = originY
	s.viewport.Width *= ratio
	s.viewport.Height *= ratio
	s.viewport.Scale = scale
	fn, ch := s.changeLocked(origin)
	s.mu.Unlock()
	emit(fn, ch)
}

// AnimateTo starts an ease-out-cubic glide of origin and scale toward
// target. The caller pumps Step once per display refresh.
func (s *ViewportService) AnimateTo(target domain.Viewport, duration time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if duration <= 0 {
		duration = 300 * time.Millisecond
	}
	s.state = StateAnimating
	s.anim = animation{
		fromOrigin: domain.ProjectedPoint{X: s.viewport.OriginX, Y: s.viewport.OriginY},
		toOrigin:   domain.ProjectedPoint{X: target.OriginX, Y: target.OriginY},
		fromScale:  s.viewport.Scale,
		toScale:    clamp(target.Scale, s.minZoom, s.maxZoom),
		start:      now,
		duration:   duration,
	}
}

// Step advances a running animation to the given instant and reports
// whether one is still in flight. A no-op outside the animating phase.
func (s *ViewportService) Step(now time.Time) bool {
	s.mu.Lock()
	if s.state != StateAnimating {
		s.mu.Unlock()
		return false
	}

	t := float64(now.Sub(s.anim.start)) / float64(s.anim.duration)
	if t >= 1 {
		t = 1
	}
	if t < 0 {
		t = 0
	}
	p := easeOutCubic(t)

	oldScale := s.viewport.Scale
	newScale := s.anim.fromScale + (s.anim.toScale-s.anim.fromScale)*p
	s.viewport.OriginX = s.anim.fromOrigin.X + (s.anim.toOrigin.X-s.anim.fromOrigin.X)*p
	s.viewport.OriginY = s.anim.fromOrigin.Y + (s.anim.toOrigin.Y-s.anim.fromOrigin.Y)*p
	if newScale != oldScale {
		ratio := oldScale / newScale
		s.viewport.Width *= ratio
		s.viewport.Height *= ratio
		s.viewport.Scale = newScale
	}

	if t >= 1 {
		s.state = StateIdle
	}
	running := s.state == StateAnimating
	fn, ch := s.changeLocked(domain.OriginViewport)
	s.mu.Unlock()
	emit(fn, ch)
	return running
}

// Reset restores the configured initial viewport.
func (s *ViewportService) Reset(origin domain.Origin) {
	s.mu.Lock()
	s.cancelAnimationLocked(origin)
	s.viewport = s.initial
	s.state = StateIdle
	metrics.ViewportOps.WithLabelValues("reset").Inc()
	fn, ch := s.changeLocked(origin)
	s.mu.Unlock()
	emit(fn, ch)
}

// Resize adapts the viewport to a new display size, anchored at the
// current center. Plane units keep mapping uniformly to pixels through
// the unchanged scale, so the background aspect ratio is preserved.
func (s *ViewportService) Resize(w, h float64, origin domain.Origin) {
	if w <= 0 || h <= 0 {
		return
	}
	s.mu.Lock()
	s.cancelAnimationLocked(origin)
	center := s.viewport.Center()
	s.viewport.Width = w / s.viewport.Scale
	s.viewport.Height = h / s.viewport.Scale
	s.viewport.OriginX = center.X - s.viewport.Width/2
	s.viewport.OriginY = center.Y - s.viewport.Height/2
	fn, ch := s.changeLocked(origin)
	s.mu.Unlock()
	emit(fn, ch)
}

func (s *ViewportService) cancelAnimationLocked(origin domain.Origin) {
	if s.state != StateAnimating {
		return
	}
	s.state = StateIdle
	metrics.AnimationsCancelled.Inc()
	slog.Debug("viewport animation cancelled", "by", string(origin))
}

// changeLocked snapshots the listener and current state so the
// notification can be delivered after the lock is released. Listeners
// may call back into the service.
func (s *ViewportService) changeLocked(origin domain.Origin) (func(domain.ViewportChange), domain.ViewportChange) {
	return s.onChange, domain.ViewportChange{Viewport: s.viewport, Origin: origin}
}

func emit(fn func(domain.ViewportChange), ch domain.ViewportChange) {
	if fn != nil {
		fn(ch)
	}
}

func easeOutCubic(t float64) float64 {
	u := 1 - t
	return 1 - u*u*u
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
