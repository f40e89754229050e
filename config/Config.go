package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strconv"
	"time"

	"dnsfwd/recordcache"
	"dnsfwd/resolver/query"
	"dnsfwd/server"
)

const (
	DefaultListen       = "127.0.0.1:53"
	DefaultSnapshotPath = "cache.snapshot.json"
	DefaultAPIListen    = "127.0.0.1:8053"
)

var DefaultUpstream = netip.MustParseAddrPort("1.1.1.1:53")

var (
	errNoUpstream      = errors.New("upstream address is unspecified")
	errBadAttempts     = errors.New("upstreamAttempts must be positive")
	errBadBufferSize   = errors.New("buffer sizes must be between 12 and 65535")
	errBadDuration     = errors.New("durations must be positive")
	errBadAPIListen    = errors.New("bad api listen address")
	errBadClientPrefix = errors.New("invalid allowedClients prefix")
)

// APIConfig configures the admin HTTP API.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
}

// Config is the JSON configuration of the forwarder.
type Config struct {
	Listen             string         `json:"listen"`
	Upstream           netip.AddrPort `json:"upstream"`
	UpstreamTimeout    Duration       `json:"upstreamTimeout"`
	UpstreamAttempts   int            `json:"upstreamAttempts"`
	UpstreamBackoff    Duration       `json:"upstreamBackoff"`
	ClientBufferSize   int            `json:"clientBufferSize"`
	UpstreamBufferSize int            `json:"upstreamBufferSize"`
	RemainingTTL       bool           `json:"remainingTTL"`
	AllowedClients     []netip.Prefix `json:"allowedClients"`
	PurgeInterval      Duration       `json:"purgeInterval"`
	API                APIConfig      `json:"api"`

	// SnapshotPath is where the cache is persisted. A nil value uses the default
	// path and an empty string disables persistence.
	SnapshotPath *string `json:"snapshotPath"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load reads the JSON configuration at path and fills in defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	var c Config
	d := json.NewDecoder(f)
	d.DisallowUnknownFields()
	if err = d.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if !c.Upstream.IsValid() {
		c.Upstream = DefaultUpstream
	}
	if c.UpstreamTimeout == 0 {
		c.UpstreamTimeout = Duration(query.DefaultTimeout)
	}
	if c.UpstreamAttempts == 0 {
		c.UpstreamAttempts = query.DefaultAttempts
	}
	if c.UpstreamBackoff == 0 {
		c.UpstreamBackoff = Duration(query.DefaultBackoff)
	}
	if c.ClientBufferSize == 0 {
		c.ClientBufferSize = server.DefaultBufferSize
	}
	if c.UpstreamBufferSize == 0 {
		c.UpstreamBufferSize = query.DefaultBufferSize
	}
	if c.PurgeInterval == 0 {
		c.PurgeInterval = Duration(recordcache.DefaultPurgeInterval)
	}
	if c.SnapshotPath == nil {
		path := DefaultSnapshotPath
		c.SnapshotPath = &path
	}
	if c.API.Listen == "" {
		c.API.Listen = DefaultAPIListen
	}
}

// Snapshot returns the snapshot path, or "" when persistence is disabled.
func (c Config) Snapshot() string {
	if c.SnapshotPath == nil {
		return ""
	}
	return *c.SnapshotPath
}

// Validate checks the configuration for values the forwarder cannot run with.
func (c Config) Validate() error {
	if err := checkHostPort(c.Listen); err != nil {
		return fmt.Errorf("bad listen address %q: %w", c.Listen, err)
	}
	if !c.Upstream.IsValid() || c.Upstream.Addr().IsUnspecified() || c.Upstream.Port() == 0 {
		return errNoUpstream
	}
	if c.UpstreamAttempts <= 0 {
		return errBadAttempts
	}
	if c.UpstreamTimeout <= 0 || c.UpstreamBackoff <= 0 || c.PurgeInterval <= 0 {
		return errBadDuration
	}
	for _, size := range []int{c.ClientBufferSize, c.UpstreamBufferSize} {
		if size < 12 || size > 65535 {
			return errBadBufferSize
		}
	}
	for _, prefix := range c.AllowedClients {
		if !prefix.IsValid() {
			return errBadClientPrefix
		}
	}
	if c.API.Enabled {
		if err := checkHostPort(c.API.Listen); err != nil {
			return fmt.Errorf("%w: %w", errBadAPIListen, err)
		}
	}
	return nil
}

func checkHostPort(address string) error {
	_, port, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	_, err = strconv.ParseUint(port, 10, 16)
	return err
}

// ServerConfig returns the UDP front end settings.
func (c Config) ServerConfig() server.ServerConfig {
	return server.ServerConfig{
		Listen:         c.Listen,
		BufferSize:     c.ClientBufferSize,
		AllowedClients: c.AllowedClients,
	}
}

// QueryConfig returns the upstream client settings.
func (c Config) QueryConfig() query.Config {
	return query.Config{
		Upstream:   c.Upstream,
		Timeout:    c.UpstreamTimeout.Value(),
		Attempts:   c.UpstreamAttempts,
		Backoff:    c.UpstreamBackoff.Value(),
		BufferSize: c.UpstreamBufferSize,
	}
}

// Purge returns the cache janitor interval.
func (c Config) Purge() time.Duration {
	return c.PurgeInterval.Value()
}
