package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/csf-agent/peerlink/pkg/config"
	"github.com/csf-agent/peerlink/pkg/persistence"
	"github.com/csf-agent/peerlink/pkg/transport"
	"github.com/csf-agent/peerlink/pkg/wire"
	"github.com/google/uuid"
)

// PingOptions configures RunPing.
type PingOptions struct {
	Address  string
	Count    int
	Interval time.Duration
	Metrics  bool
}

// RunPing dials one peer, sends Count heartbeats and reports each
// round-trip time. With Metrics it also prints the peer's metrics.
func RunPing(ctx context.Context, cfg config.Config, opts PingOptions, logger *slog.Logger, w io.Writer) error {
	frameLimit, err := cfg.FrameLimit()
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	identity, err := pingIdentity(cfg)
	if err != nil {
		return err
	}

	trust, err := transport.LoadTrustConfig(cfg.CertPaths())
	if err != nil {
		return fmt.Errorf("trust configuration: %w", err)
	}

	connector, err := transport.NewConnector(transport.ConnectorConfig{
		Identity:         identity,
		Trust:            trust,
		MaxFrameSize:     frameLimit,
		HandshakeTimeout: cfg.HandshakeTimeout(),
		ConnectTimeout:   cfg.P2P.ConnectTimeout.Std(),
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	pc, err := connector.ConnectToPeer(ctx, opts.Address)
	if err != nil {
		return err
	}
	defer pc.Close()
	fmt.Fprintf(w, "Connected to %s at %s in %s\n", pc.Peer().String(), opts.Address, time.Since(start).Round(time.Microsecond))

	count := max(opts.Count, 1)
	timeout := cfg.P2P.HeartbeatInterval.Std()
	for i := range count {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.Interval):
			}
		}

		hctx, cancel := context.WithTimeout(ctx, timeout)
		sent := time.Now()
		err := pc.SendHeartbeat(hctx)
		cancel()
		if err != nil {
			return fmt.Errorf("heartbeat %d: %w", i+1, err)
		}
		fmt.Fprintf(w, "heartbeat %d acknowledged in %s\n", i+1, time.Since(sent).Round(time.Microsecond))
	}

	if opts.Metrics {
		data, err := pc.RequestMetrics(ctx)
		if err != nil {
			return err
		}
		var out bytes.Buffer
		if err := json.Indent(&out, data, "", "  "); err != nil {
			out.Reset()
			out.Write(data)
		}
		fmt.Fprintf(w, "%s\n", out.String())
	}
	return nil
}

// pingIdentity reuses the persisted identity when one exists, without
// creating a new identity file.
func pingIdentity(cfg config.Config) (wire.Identity, error) {
	if path := cfg.Agent.IdentityFile; path != "" {
		id, err := persistence.NewIdentityStore(path).Load()
		if err != nil {
			return wire.Identity{}, err
		}
		if id != nil {
			return id.Identity(), nil
		}
	}
	return wire.Identity{AgentID: uuid.New(), AgentName: cfg.Agent.Name}, nil
}
