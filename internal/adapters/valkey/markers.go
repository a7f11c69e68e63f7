package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/suntrack/fleetmap/internal/core/domain"
)

// markerRecord is the durable form of one custom marker. Projected
// coordinates are intentionally absent; they are recomputed on restore
// so a bounds or plane change never replays stale pixels.
type markerRecord struct {
	ID        int64     `json:"id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Title     string    `json:"title"`
	Note      string    `json:"note,omitempty"`
	Category  string    `json:"category,omitempty"`
	Affinity  string    `json:"affinity,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MarkerRepo implements ports.MarkerRepository over a single Valkey key
// holding a JSON array. Every Save replaces the whole array, so
// concurrent editors converge to last-write-wins.
type MarkerRepo struct {
	client valkey.Client
	key    string
}

// NewMarkerRepo creates a repository writing under the given key.
func NewMarkerRepo(addr, key string) (*MarkerRepo, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return &MarkerRepo{client: client, key: key}, nil
}

// Save overwrites the durable marker list.
func (r *MarkerRepo) Save(ctx context.Context, markers []domain.Marker) error {
	records := make([]markerRecord, 0, len(markers))
	for _, m := range markers {
		records = append(records, markerRecord{
			ID:        m.ID,
			Lat:       m.Geo.Lat,
			Lon:       m.Geo.Lon,
			Title:     m.Title,
			Note:      m.Note,
			Category:  m.Category,
			Affinity:  m.Affinity,
			CreatedAt: m.CreatedAt,
		})
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal markers: %w", err)
	}
	cmd := r.client.Do(ctx, r.client.B().Set().Key(r.key).Value(string(payload)).Build())
	if cmd.Error() != nil {
		return fmt.Errorf("set %s: %w", r.key, cmd.Error())
	}
	return nil
}

// Load reads the durable marker list. A missing key is an empty fleet,
// not an error. Records that fail validation are dropped one by one so
// a single bad row never takes the rest down with it.
func (r *MarkerRepo) Load(ctx context.Context) ([]domain.Marker, error) {
	cmd := r.client.Do(ctx, r.client.B().Get().Key(r.key).Build())
	if err := cmd.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", r.key, err)
	}
	payload, err := cmd.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.key, err)
	}

	markers, err := decodeMarkerList(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.key, err)
	}
	return markers, nil
}

// decodeMarkerList parses the durable JSON array element by element. A
// record that fails to decode or validate is dropped with a warning;
// only a payload that is not an array at all fails the whole load.
func decodeMarkerList(payload []byte) ([]domain.Marker, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}

	markers := make([]domain.Marker, 0, len(raw))
	for i, item := range raw {
		var rec markerRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			slog.Warn("dropping persisted marker", "index", i, "error", err)
			continue
		}
		if err := rec.validate(); err != nil {
			slog.Warn("dropping persisted marker", "id", rec.ID, "error", err)
			continue
		}
		markers = append(markers, domain.Marker{
			ID:        rec.ID,
			Geo:       domain.GeoPoint{Lat: rec.Lat, Lon: rec.Lon},
			Title:     rec.Title,
			Note:      rec.Note,
			Category:  rec.Category,
			Source:    domain.SourceCustom,
			Affinity:  rec.Affinity,
			CreatedAt: rec.CreatedAt,
		})
	}
	return markers, nil
}

// Clear removes the durable key.
func (r *MarkerRepo) Clear(ctx context.Context) error {
	cmd := r.client.Do(ctx, r.client.B().Del().Key(r.key).Build())
	if cmd.Error() != nil {
		return fmt.Errorf("del %s: %w", r.key, cmd.Error())
	}
	return nil
}

// Close releases the client.
func (r *MarkerRepo) Close() {
	r.client.Close()
}

func (rec markerRecord) validate() error {
	if rec.ID <= 0 {
		return fmt.Errorf("non-positive id")
	}
	if rec.Title == "" {
		return fmt.Errorf("missing title")
	}
	if rec.Lat < -90 || rec.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", rec.Lat)
	}
	if rec.Lon < -180 || rec.Lon > 180 {
		return fmt.Errorf("longitude %v out of range", rec.Lon)
	}
	return nil
}
