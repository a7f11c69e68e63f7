package http

import (
	"github.com/nats-io/nats.go"

	"github.com/suntrack/fleetmap/internal/adapters/postgres"
	"github.com/suntrack/fleetmap/internal/adapters/renderer/vector"
	"github.com/suntrack/fleetmap/internal/adapters/valkey"
	"github.com/suntrack/fleetmap/internal/core/usecases"
)

// Dependencies holds everything the HTTP handlers need.
type Dependencies struct {
	Engine *usecases.Engine
	Vector *vector.Adapter
	Plants *postgres.PlantRepo
	NATS   *nats.Conn
	DB     *postgres.DB
	Cache  *valkey.Cache
}
