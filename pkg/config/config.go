package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/csf-agent/peerlink/pkg/cert"
	"github.com/csf-agent/peerlink/pkg/transport"
	"gopkg.in/yaml.v3"
)

// Default values.
const (
	DefaultAgentName            = "peerlink-agent"
	DefaultCertDir              = "certs"
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultMetricsShareInterval = 0
	DefaultConnectTimeout       = 30 * time.Second
)

// Metrics sources.
const (
	MetricsSourceSystem = "system"
	MetricsSourceStatic = "static"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Configuration errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported config format")
	ErrInvalidConfig     = errors.New("invalid config")
)

// Config is the complete agent configuration.
type Config struct {
	Agent   AgentConfig   `yaml:"agent" toml:"agent"`
	P2P     P2PConfig     `yaml:"p2p" toml:"p2p"`
	Certs   CertsConfig   `yaml:"certs" toml:"certs"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
	Log     LogConfig     `yaml:"log" toml:"log"`
}

// AgentConfig names this agent.
type AgentConfig struct {
	// Name is presented to peers in the handshake.
	Name string `yaml:"name" toml:"name"`

	// IdentityFile persists the agent id across restarts. Empty generates a
	// new id on every start.
	IdentityFile string `yaml:"identity_file" toml:"identity_file"`
}

// P2PConfig configures the listener and outbound peer links.
type P2PConfig struct {
	ListenHost string   `yaml:"listen_host" toml:"listen_host"`
	ListenPort int      `yaml:"listen_port" toml:"listen_port"`
	Peers      []string `yaml:"peers" toml:"peers"`

	HeartbeatInterval Duration `yaml:"heartbeat_interval" toml:"heartbeat_interval"`

	// MetricsShareInterval pushes local metrics to each peer; 0 disables.
	MetricsShareInterval Duration `yaml:"metrics_share_interval" toml:"metrics_share_interval"`

	// HandshakeTimeout bounds TLS plus identity exchange; 0 disables.
	HandshakeTimeout Duration `yaml:"handshake_timeout" toml:"handshake_timeout"`
	ConnectTimeout   Duration `yaml:"connect_timeout" toml:"connect_timeout"`

	MaxFrameSize int  `yaml:"max_frame_size" toml:"max_frame_size"`
	Reconnect    bool `yaml:"reconnect" toml:"reconnect"`
}

// CertsConfig locates the certificate material.
type CertsConfig struct {
	Dir       string `yaml:"dir" toml:"dir"`
	CACert    string `yaml:"ca_cert" toml:"ca_cert"`
	CAKey     string `yaml:"ca_key" toml:"ca_key"`
	AgentCert string `yaml:"agent_cert" toml:"agent_cert"`
	AgentKey  string `yaml:"agent_key" toml:"agent_key"`

	AutoGenerate bool     `yaml:"auto_generate" toml:"auto_generate"`
	ExtraSANs    []string `yaml:"extra_sans" toml:"extra_sans"`
}

// MetricsConfig selects what MetricsRequest answers with.
type MetricsConfig struct {
	Source string `yaml:"source" toml:"source"`
}

// LogConfig configures operational and protocol logging.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`

	// ProtocolLog is a .plog file receiving CBOR protocol events.
	ProtocolLog string `yaml:"protocol_log" toml:"protocol_log"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Agent: AgentConfig{Name: DefaultAgentName},
		P2P: P2PConfig{
			ListenHost:           "0.0.0.0",
			ListenPort:           transport.DefaultPort,
			HeartbeatInterval:    Duration(DefaultHeartbeatInterval),
			MetricsShareInterval: Duration(DefaultMetricsShareInterval),
			HandshakeTimeout:     Duration(transport.DefaultHandshakeTimeout),
			ConnectTimeout:       Duration(DefaultConnectTimeout),
			MaxFrameSize:         transport.DefaultMaxFrameSize,
			Reconnect:            true,
		},
		Certs: CertsConfig{
			Dir:          DefaultCertDir,
			AutoGenerate: true,
		},
		Metrics: MetricsConfig{Source: MetricsSourceSystem},
		Log: LogConfig{
			Level:  "info",
			Format: LogFormatText,
		},
	}
}

// Load reads and validates the file at path.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		return Config{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that an empty path or a missing file
// yields Default().
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks value ranges and formats.
func (c Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if strings.TrimSpace(c.Agent.Name) == "" {
		fail("agent.name is required")
	}
	if c.P2P.ListenPort < 1 || c.P2P.ListenPort > 65535 {
		fail("p2p.listen_port %d out of range 1-65535", c.P2P.ListenPort)
	}
	for i, peer := range c.P2P.Peers {
		if err := validatePeer(peer); err != nil {
			fail("p2p.peers[%d] %q: %v", i, peer, err)
		}
	}
	if c.P2P.HeartbeatInterval <= 0 {
		fail("p2p.heartbeat_interval must be positive")
	}
	if c.P2P.MetricsShareInterval < 0 {
		fail("p2p.metrics_share_interval must not be negative")
	}
	if c.P2P.HandshakeTimeout < 0 {
		fail("p2p.handshake_timeout must not be negative")
	}
	if c.P2P.ConnectTimeout < 0 {
		fail("p2p.connect_timeout must not be negative")
	}
	if _, err := c.FrameLimit(); err != nil {
		fail("p2p.%v", err)
	}
	if c.Certs.Dir == "" && (c.Certs.CACert == "" || c.Certs.AgentCert == "" || c.Certs.AgentKey == "") {
		fail("certs.dir is required unless every certificate path is set")
	}
	switch c.Metrics.Source {
	case MetricsSourceSystem, MetricsSourceStatic:
	default:
		fail("metrics.source %q is not one of system, static", c.Metrics.Source)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		fail("log.level: %v", err)
	}
	switch c.Log.Format {
	case LogFormatText, LogFormatJSON:
	default:
		fail("log.format %q is not one of text, json", c.Log.Format)
	}

	return errors.Join(errs...)
}

func validatePeer(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "" {
		return errors.New("missing host")
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}

// ListenAddress returns host:port for the listener.
func (c Config) ListenAddress() string {
	return net.JoinHostPort(c.P2P.ListenHost, strconv.Itoa(c.P2P.ListenPort))
}

// CertPaths resolves certificate paths, defaulting each file to the
// standard name under certs.dir.
func (c Config) CertPaths() cert.Paths {
	paths := cert.PathsInDir(c.Certs.Dir)
	if c.Certs.CACert != "" {
		paths.CACert = c.Certs.CACert
	}
	if c.Certs.CAKey != "" {
		paths.CAKey = c.Certs.CAKey
	}
	if c.Certs.AgentCert != "" {
		paths.AgentCert = c.Certs.AgentCert
	}
	if c.Certs.AgentKey != "" {
		paths.AgentKey = c.Certs.AgentKey
	}
	return paths
}

// HandshakeTimeout maps the configured value onto transport semantics,
// where zero selects the default and a negative value disables the limit.
func (c Config) HandshakeTimeout() time.Duration {
	if c.P2P.HandshakeTimeout == 0 {
		return -1
	}
	return c.P2P.HandshakeTimeout.Std()
}

// FrameLimit returns max_frame_size as the transport's frame limit. Values
// below the transport minimum or beyond 32 bits are rejected.
func (c Config) FrameLimit() (uint32, error) {
	n := c.P2P.MaxFrameSize
	if n < transport.MinMaxFrameSize {
		return 0, fmt.Errorf("max_frame_size must be at least %d bytes", transport.MinMaxFrameSize)
	}
	if uint64(n) > math.MaxUint32 {
		return 0, fmt.Errorf("max_frame_size must be at most %d bytes", uint64(math.MaxUint32))
	}
	return uint32(n), nil
}

// NewLogger builds the operational logger described by the log section.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown level %q", s)
	}
	return level, nil
}
