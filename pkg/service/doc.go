// Package service composes a running peerlink agent.
//
// AgentService ties the lower-level packages together:
//   - agent identity (persisted when an identity file is configured)
//   - certificate bootstrap and the mTLS trust configuration
//   - the listener answering heartbeats and metrics requests
//   - one supervised link per configured peer, heartbeating until failure
//     and optionally pushing local metrics
//
// Example usage:
//
//	cfg, _ := config.LoadOrDefault("/etc/peerlink/agent.yaml")
//	svc := service.NewAgentService(cfg, service.WithLogger(logger))
//	if err := svc.Start(ctx); err != nil {
//		return err
//	}
//	defer svc.Stop()
//
// Startup failures (missing certificates without auto-generation, unreadable
// material, bind failure) are returned from Start. Per-peer failures only
// affect that peer's link.
package service
