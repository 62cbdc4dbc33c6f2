package config

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/csf-agent/peerlink/pkg/transport"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
	if cfg.P2P.ListenPort != transport.DefaultPort {
		t.Errorf("ListenPort = %d, want %d", cfg.P2P.ListenPort, transport.DefaultPort)
	}
	if cfg.P2P.HeartbeatInterval.Std() != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", cfg.P2P.HeartbeatInterval)
	}
	if !cfg.P2P.Reconnect || !cfg.Certs.AutoGenerate {
		t.Error("reconnect and auto_generate default to true")
	}
	if got := cfg.ListenAddress(); got != "0.0.0.0:9443" {
		t.Errorf("ListenAddress() = %q", got)
	}
}

const yamlConfig = `
agent:
  name: edge-01
  identity_file: /var/lib/peerlink/identity.json
p2p:
  listen_port: 9555
  peers: ["10.0.0.2:9443", "edge-03.local:9443"]
  heartbeat_interval: 5s
  metrics_share_interval: 1m
  handshake_timeout: 0s
  reconnect: false
certs:
  dir: /etc/peerlink/certs
  agent_key: /secure/agent.key
  extra_sans: [edge-01.local, 10.0.0.1]
metrics:
  source: static
log:
  level: debug
  format: json
  protocol_log: /var/log/peerlink/trace.plog
`

const tomlConfig = `
[agent]
name = "edge-01"
identity_file = "/var/lib/peerlink/identity.json"

[p2p]
listen_port = 9555
peers = ["10.0.0.2:9443", "edge-03.local:9443"]
heartbeat_interval = "5s"
metrics_share_interval = "1m"
handshake_timeout = "0s"
reconnect = false

[certs]
dir = "/etc/peerlink/certs"
agent_key = "/secure/agent.key"
extra_sans = ["edge-01.local", "10.0.0.1"]

[metrics]
source = "static"

[log]
level = "debug"
format = "json"
protocol_log = "/var/log/peerlink/trace.plog"
`

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "agent.yaml", yamlConfig},
		{"yml", "agent.yml", yamlConfig},
		{"toml", "agent.toml", tomlConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if cfg.Agent.Name != "edge-01" || cfg.Agent.IdentityFile != "/var/lib/peerlink/identity.json" {
				t.Errorf("Agent = %+v", cfg.Agent)
			}
			if cfg.P2P.ListenPort != 9555 || len(cfg.P2P.Peers) != 2 || cfg.P2P.Peers[1] != "edge-03.local:9443" {
				t.Errorf("P2P = %+v", cfg.P2P)
			}
			if cfg.P2P.HeartbeatInterval.Std() != 5*time.Second {
				t.Errorf("HeartbeatInterval = %v", cfg.P2P.HeartbeatInterval)
			}
			if cfg.P2P.MetricsShareInterval.Std() != time.Minute {
				t.Errorf("MetricsShareInterval = %v", cfg.P2P.MetricsShareInterval)
			}
			if cfg.P2P.Reconnect {
				t.Error("Reconnect = true, want false")
			}
			if cfg.HandshakeTimeout() >= 0 {
				t.Errorf("HandshakeTimeout() = %v, want disabled", cfg.HandshakeTimeout())
			}

			// Keys absent from the file keep their defaults.
			if cfg.P2P.MaxFrameSize != transport.DefaultMaxFrameSize {
				t.Errorf("MaxFrameSize = %d, want default", cfg.P2P.MaxFrameSize)
			}
			if !cfg.Certs.AutoGenerate {
				t.Error("AutoGenerate lost its default")
			}

			paths := cfg.CertPaths()
			if paths.CACert != "/etc/peerlink/certs/ca.crt" || paths.AgentKey != "/secure/agent.key" {
				t.Errorf("CertPaths() = %+v", paths)
			}
			if len(cfg.Certs.ExtraSANs) != 2 {
				t.Errorf("ExtraSANs = %v", cfg.Certs.ExtraSANs)
			}
			if cfg.Metrics.Source != MetricsSourceStatic {
				t.Errorf("Metrics.Source = %q", cfg.Metrics.Source)
			}
			if cfg.Log.Level != "debug" || cfg.Log.Format != LogFormatJSON || cfg.Log.ProtocolLog == "" {
				t.Errorf("Log = %+v", cfg.Log)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("unsupported extension", func(t *testing.T) {
		_, err := Load(writeFile(t, "agent.json", "{}"))
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("error = %v, want ErrUnsupportedFormat", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "none.yaml")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("error = %v, want os.ErrNotExist", err)
		}
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := Load(writeFile(t, "agent.yaml", "p2p:\n  heartbeat_interval: soon\n"))
		if err == nil || !strings.Contains(err.Error(), "soon") {
			t.Errorf("error = %v, want duration parse failure", err)
		}
	})

	t.Run("bad toml duration", func(t *testing.T) {
		_, err := Load(writeFile(t, "agent.toml", "[p2p]\nheartbeat_interval = \"soon\"\n"))
		if err == nil {
			t.Error("Load() accepted an invalid duration")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Load(writeFile(t, "agent.yaml", "p2p:\n  listen_port: 70000\n"))
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("error = %v, want ErrInvalidConfig", err)
		}
	})
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	if err != nil || cfg.Agent.Name != DefaultAgentName {
		t.Errorf("LoadOrDefault(\"\") = %+v, %v", cfg.Agent, err)
	}

	cfg, err = LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil || cfg.Agent.Name != DefaultAgentName {
		t.Errorf("LoadOrDefault(missing) = %+v, %v", cfg.Agent, err)
	}

	cfg, err = LoadOrDefault(writeFile(t, "agent.yaml", "agent:\n  name: edge-09\n"))
	if err != nil || cfg.Agent.Name != "edge-09" {
		t.Errorf("LoadOrDefault(file) = %+v, %v", cfg.Agent, err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty name", func(c *Config) { c.Agent.Name = " " }, "agent.name"},
		{"port zero", func(c *Config) { c.P2P.ListenPort = 0 }, "listen_port"},
		{"peer without port", func(c *Config) { c.P2P.Peers = []string{"10.0.0.2"} }, "p2p.peers[0]"},
		{"peer without host", func(c *Config) { c.P2P.Peers = []string{":9443"} }, "missing host"},
		{"peer bad port", func(c *Config) { c.P2P.Peers = []string{"a:0"} }, "invalid port"},
		{"zero heartbeat", func(c *Config) { c.P2P.HeartbeatInterval = 0 }, "heartbeat_interval"},
		{"negative share", func(c *Config) { c.P2P.MetricsShareInterval = -1 }, "metrics_share_interval"},
		{"tiny frames", func(c *Config) { c.P2P.MaxFrameSize = 10 }, "max_frame_size"},
		{"frames beyond 32 bits", func(c *Config) { c.P2P.MaxFrameSize = math.MaxUint32 + 64 }, "at most"},
		{"no cert dir", func(c *Config) { c.Certs.Dir = "" }, "certs.dir"},
		{"metrics source", func(c *Config) { c.Metrics.Source = "prometheus" }, "metrics.source"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %q, want mention of %q", err, tt.want)
			}
		})
	}

	t.Run("explicit cert paths without dir", func(t *testing.T) {
		cfg := Default()
		cfg.Certs = CertsConfig{CACert: "/c/ca.crt", AgentCert: "/c/a.crt", AgentKey: "/c/a.key"}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})
}

func TestFrameLimit(t *testing.T) {
	cfg := Default()
	got, err := cfg.FrameLimit()
	if err != nil || got != transport.DefaultMaxFrameSize {
		t.Errorf("FrameLimit() = %d, %v, want default", got, err)
	}

	cfg.P2P.MaxFrameSize = math.MaxUint32
	if got, err := cfg.FrameLimit(); err != nil || got != math.MaxUint32 {
		t.Errorf("FrameLimit() = %d, %v, want %d", got, err, uint32(math.MaxUint32))
	}

	// A limit that would wrap to 64 must not be accepted.
	cfg.P2P.MaxFrameSize = math.MaxUint32 + 64
	if _, err := cfg.FrameLimit(); err == nil {
		t.Error("FrameLimit() accepted a value beyond 32 bits")
	}

	path := writeFile(t, "agent.yaml", "p2p:\n  max_frame_size: 4294967360\n")
	if _, err := Load(path); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load() = %v, want ErrInvalidConfig", err)
	}
}

func TestHandshakeTimeout(t *testing.T) {
	cfg := Default()
	if got := cfg.HandshakeTimeout(); got != transport.DefaultHandshakeTimeout {
		t.Errorf("HandshakeTimeout() = %v, want %v", got, transport.DefaultHandshakeTimeout)
	}
	cfg.P2P.HandshakeTimeout = Duration(2 * time.Second)
	if got := cfg.HandshakeTimeout(); got != 2*time.Second {
		t.Errorf("HandshakeTimeout() = %v, want 2s", got)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Log.Format = LogFormatJSON
	cfg.Log.Level = "warn"

	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "peer", "edge-02")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line logged at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"peer":"edge-02"`) {
		t.Errorf("unexpected output: %s", out)
	}
}
