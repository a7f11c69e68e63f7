package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/suntrack/fleetmap/internal/core/domain"
	"github.com/suntrack/fleetmap/internal/core/ports"
	"github.com/suntrack/fleetmap/internal/core/projection"
	"github.com/suntrack/fleetmap/internal/pkg/metrics"
)

// Engine is the single explicitly constructed entry point to the map
// core. It owns the canonical projection, the viewport, the marker
// store, the region classifier, and the renderer registry; consumers
// receive it by reference, there are no ambient globals.
type Engine struct {
	mu sync.Mutex

	transform *projection.Transform
	viewport  *ViewportService
	markers   *MarkerService
	regions   *RegionService
	bus       *eventBus

	renderers map[string]ports.Renderer
	mounted   map[string]bool
	active    string
	container string
}

// NewEngine assembles the core around one shared bounding box and
// plane. external may be nil; semantic events are then delivered to
// in-process handlers only.
func NewEngine(
	transform *projection.Transform,
	initial domain.Viewport,
	minZoom, maxZoom float64,
	repo ports.MarkerRepository,
	cache ports.CacheService,
	external ports.EventPublisher,
	regionTable []domain.Region,
	enforceBounds bool,
) *Engine {
	bus := newEventBus(external)
	regions := NewRegionService(regionTable, cache)
	markers := NewMarkerService(transform, repo, bus, regions, enforceBounds)
	viewport := NewViewportService(initial, minZoom, maxZoom)

	e := &Engine{
		transform: transform,
		viewport:  viewport,
		markers:   markers,
		regions:   regions,
		bus:       bus,
		renderers: make(map[string]ports.Renderer),
		mounted:   make(map[string]bool),
	}

	viewport.OnChange(e.pushViewport)
	markers.OnMutation(e.pushMarkers)
	return e
}

// Transform returns the canonical geo<->plane projection.
func (e *Engine) Transform() *projection.Transform { return e.transform }

// Viewport returns the camera controller.
func (e *Engine) Viewport() *ViewportService { return e.viewport }

// Markers returns the canonical marker store.
func (e *Engine) Markers() *MarkerService { return e.markers }

// Regions returns the region classifier.
func (e *Engine) Regions() *RegionService { return e.regions }

// RegisterRenderer adds a renderer to the registry and wires its
// gesture callbacks into the core. The first registered renderer
// becomes the default active one.
func (e *Engine) RegisterRenderer(r ports.Renderer) {
	e.mu.Lock()
	e.renderers[r.Name()] = r
	if e.active == "" {
		e.active = r.Name()
		e.markers.SetActiveRenderer(e.active)
	}
	e.mu.Unlock()

	r.OnViewportChange(func(ch domain.ViewportChange) {
		// A gesture on the renderer's native camera becomes canonical
		// viewport state. The change keeps the renderer's origin tag,
		// so the push going back out is dropped by its producer.
		e.viewport.SetCamera(ch.Viewport.OriginX, ch.Viewport.OriginY, ch.Viewport.Scale, ch.Origin)
	})
	r.OnMarkerDrag(func(id int64, geo domain.GeoPoint) {
		if _, err := e.markers.CommitDrag(context.Background(), id, geo); err != nil {
			slog.Warn("drag commit failed", "marker_id", id, "error", err)
		}
	})
	r.OnMarkerClick(func(id int64) {
		m, err := e.markers.Get(id)
		if err != nil {
			return
		}
		regionID := e.regions.Classify(m.Geo)
		e.bus.PublishEvent(context.Background(), domain.Event{
			Type:     domain.EventRegionSelected,
			Origin:   domain.OriginEngine,
			Marker:   &m,
			RegionID: regionID,
		})
	})
}

// InitMap mounts the active renderer into the given container and
// draws the current state, including any restored custom markers. A
// mount failure leaves viewport and marker state valid; InitMap can be
// retried with a good container.
func (e *Engine) InitMap(container string) error {
	e.mu.Lock()
	name := e.active
	r, ok := e.renderers[name]
	e.mu.Unlock()
	if !ok {
		return domain.ErrNoActiveRenderer
	}

	if err := r.Mount(container); err != nil {
		return &domain.MountError{Renderer: name, Err: err}
	}

	e.mu.Lock()
	e.container = container
	e.mounted[name] = true
	e.mu.Unlock()

	e.renderActive(domain.OriginEngine)
	return nil
}

// Restore loads persisted custom markers into the store. They stay
// unrendered until InitMap mounts a renderer.
func (e *Engine) Restore(ctx context.Context) error {
	return e.markers.Restore(ctx)
}

// LoadPlants replaces the fleet marker set from a feed snapshot.
func (e *Engine) LoadPlants(ctx context.Context, records []domain.PlantRecord) {
	e.markers.LoadPlants(ctx, records)
}

// AddMarkerAt places a custom marker at geo.
func (e *Engine) AddMarkerAt(ctx context.Context, geo domain.GeoPoint) (domain.Marker, error) {
	return e.markers.AddCustomMarker(ctx, geo)
}

// SwitchRenderer activates another registered renderer. The viewport's
// geographic center survives the switch: the center plane point is
// reprojected through the shared transform, so renderers with different
// native planes agree on where the camera looks.
func (e *Engine) SwitchRenderer(name string) error {
	e.mu.Lock()
	r, ok := e.renderers[name]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("switch renderer: unknown renderer %q", name)
	}
	if name == e.active {
		e.mu.Unlock()
		return nil
	}
	container := e.container
	needsMount := container != "" && !e.mounted[name]
	prev := e.active
	e.mu.Unlock()

	if needsMount {
		if err := r.Mount(container); err != nil {
			return &domain.MountError{Renderer: name, Err: err}
		}
		e.mu.Lock()
		e.mounted[name] = true
		e.mu.Unlock()
	}

	e.mu.Lock()
	e.active = name
	e.mu.Unlock()
	e.markers.SetActiveRenderer(name)
	metrics.RendererSwitches.WithLabelValues(prev, name).Inc()

	e.renderActive(domain.OriginEngine)

	center := e.transform.ToGeo(e.viewport.Viewport().Center())
	slog.Info("renderer switched",
		"from", prev, "to", name,
		"center_lat", center.Lat, "center_lon", center.Lon)
	return nil
}

// ActiveRenderer returns the name of the active renderer.
func (e *Engine) ActiveRenderer() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// SelectRegion resolves a renderer shape identifier (or a region id)
// and emits the region-selected event. Stats are identical whether the
// selection came from shape hover or point classification.
func (e *Engine) SelectRegion(ctx context.Context, shapeID string) (domain.Region, error) {
	id, ok := e.regions.ResolveShape(shapeID)
	if !ok {
		return domain.Region{}, fmt.Errorf("select region: unknown shape %q", shapeID)
	}
	region, ok := e.regions.Region(id)
	if !ok {
		return domain.Region{}, fmt.Errorf("select region: unknown region %q", id)
	}
	e.bus.PublishEvent(ctx, domain.Event{
		Type:     domain.EventRegionSelected,
		Origin:   domain.OriginEngine,
		RegionID: id,
	})
	return region, nil
}

// ResetView restores the configured initial viewport and announces it.
func (e *Engine) ResetView(ctx context.Context) {
	e.viewport.Reset(domain.OriginEngine)
	e.bus.PublishEvent(ctx, domain.Event{
		Type:   domain.EventViewportReset,
		Origin: domain.OriginEngine,
	})
}

// On registers an in-process handler for a semantic event type.
func (e *Engine) On(t domain.EventType, fn func(domain.Event)) {
	e.bus.on(t, fn)
}

// pushViewport forwards camera changes to the active mounted renderer.
func (e *Engine) pushViewport(ch domain.ViewportChange) {
	r := e.activeMounted()
	if r == nil {
		return
	}
	if err := r.Render(e.markers.MarkersFor(r.Name()), ch); err != nil {
		slog.Warn("render failed", "renderer", r.Name(), "error", err)
	}
}

// pushMarkers redraws the active renderer after a marker mutation.
func (e *Engine) pushMarkers() {
	e.renderActive(domain.OriginMarkers)
}

func (e *Engine) renderActive(origin domain.Origin) {
	r := e.activeMounted()
	if r == nil {
		return
	}
	ch := domain.ViewportChange{Viewport: e.viewport.Viewport(), Origin: origin}
	if err := r.Render(e.markers.MarkersFor(r.Name()), ch); err != nil {
		slog.Warn("render failed", "renderer", r.Name(), "error", err)
	}
}

func (e *Engine) activeMounted() ports.Renderer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == "" || !e.mounted[e.active] {
		return nil
	}
	return e.renderers[e.active]
}

// eventBus fans semantic events out to in-process handlers and,
// best-effort, to an external broker.
type eventBus struct {
	mu       sync.Mutex
	handlers map[domain.EventType][]func(domain.Event)
	external ports.EventPublisher
}

func newEventBus(external ports.EventPublisher) *eventBus {
	return &eventBus{
		handlers: make(map[domain.EventType][]func(domain.Event)),
		external: external,
	}
}

func (b *eventBus) on(t domain.EventType, fn func(domain.Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], fn)
}

// PublishEvent implements ports.EventPublisher.
func (b *eventBus) PublishEvent(ctx context.Context, event domain.Event) error {
	b.mu.Lock()
	local := append([]func(domain.Event){}, b.handlers[event.Type]...)
	external := b.external
	b.mu.Unlock()

	for _, fn := range local {
		fn(event)
	}
	if external != nil {
		if err := external.PublishEvent(ctx, event); err != nil {
			slog.Warn("external event publish failed", "type", string(event.Type), "error", err)
		}
	}
	return nil
}
