package relay

import (
	"context"
	"net/http"

	"github.com/dids/devterm/internal/config"
	"github.com/dids/devterm/internal/inventory"
)

// Relay wires the broker, terminal service and HTTP server together.
type Relay struct {
	Broker  *Broker
	Service *TerminalService
	Server  *Server
	store   inventory.Store
}

func New(ctx context.Context, cfg *config.Config, store inventory.Store) *Relay {
	var svc *TerminalService
	broker := NewBroker(cfg.Terminal.Destination, cfg.Relay.Heartbeat, cfg.Relay.MaxConnections,
		func(body []byte) { svc.HandleFrame(body) })
	svc = NewTerminalService(ctx, broker, cfg.Terminal, cfg.Relay)
	return &Relay{
		Broker:  broker,
		Service: svc,
		Server:  NewServer(cfg.Server, store, broker),
		store:   store,
	}
}

// Handler returns the HTTP handler serving /ws and /api.
func (r *Relay) Handler() http.Handler {
	return r.Server.Routes()
}

// Apply takes a reloaded config: relay limits, the API token hash and any
// devices declared in the file. Listen address and topics need a restart.
func (r *Relay) Apply(ctx context.Context, cfg *config.Config) error {
	r.Service.Apply(cfg.Relay)
	r.Server.SetTokenHash(cfg.Server.TokenHash)
	return inventory.Seed(ctx, r.store, inventory.FromSeeds(cfg.Inventory.Devices))
}
