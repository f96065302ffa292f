package app

import (
	"context"
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/oracle"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
	"github.com/yungbote/deckrebuild-backend/internal/platform/blob"
	"github.com/yungbote/deckrebuild-backend/internal/realtime/bus"
	"github.com/yungbote/deckrebuild-backend/internal/temporalx"
)

type Clients struct {
	Blob     blob.Store
	Bus      bus.Bus
	Oracle   *oracle.Adapter
	Temporal temporalsdkclient.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	store, err := resolveBlobStore(ctx, log, cfg.Blob)
	if err != nil {
		return out, err
	}
	out.Blob = store

	b, err := bus.Open(log, cfg.Redis)
	if err != nil {
		return out, fmt.Errorf("init job bus: %w", err)
	}
	out.Bus = b

	adapter, err := oracle.Open(ctx, log, oracle.DefaultRegistry(), cfg.Oracle)
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init oracle: %w", err)
	}
	out.Oracle = adapter

	if cfg.Dispatch == DispatchTemporal {
		tc, err := temporalx.NewClient(ctx, log, cfg.Temporal)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init temporal client: %w", err)
		}
		out.Temporal = tc
	}
	return out, nil
}

func (c Clients) Close() {
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
}
