package runner

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	stresshttp "github.com/olebeck/stress/http"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	TargetURL       string
	Workers         int
	Delay           time.Duration
	FollowRedirects bool

	// InsecureSkipTLSVerify disables certificate and hostname verification
	// for https targets.
	InsecureSkipTLSVerify bool

	Headers        map[string]string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	ReportInterval time.Duration
	DrainTimeout   time.Duration

	// DNSRefreshInterval is how often cached host lookups are refreshed.
	DNSRefreshInterval time.Duration

	// StatsDB is a sqlite file that keeps the history of runs. Empty disables it.
	StatsDB string
	// StatsAddr is the listen address of the stats page. Empty disables it.
	StatsAddr string
	// StatsPush is a ws:// or wss:// collector that every report is also
	// pushed to. Empty disables it.
	StatsPush string
	// Pprof serves net/http/pprof on a free loopback port.
	Pprof bool
}

func DefaultConfig() Config {
	return Config{
		TargetURL:          "https://example.com/",
		Workers:            300,
		Headers:            stresshttp.DefaultHeaders,
		ConnectTimeout:     stresshttp.DefaultConnectTimeout,
		ReadTimeout:        stresshttp.DefaultReadTimeout,
		ReportInterval:     5 * time.Second,
		DrainTimeout:       3 * time.Second,
		DNSRefreshInterval: 5 * time.Minute,
	}
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.TargetURL)
	if err != nil {
		return fmt.Errorf("%w: target url: %w", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: target url scheme %q, want http or https", ErrInvalidConfig, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: target url has no host", ErrInvalidConfig)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers %d < 1", ErrInvalidConfig, c.Workers)
	}
	if c.Delay < 0 {
		return fmt.Errorf("%w: negative delay %s", ErrInvalidConfig, c.Delay)
	}
	if c.ReportInterval <= 0 {
		return fmt.Errorf("%w: report interval must be positive", ErrInvalidConfig)
	}
	if c.StatsPush != "" {
		u, err := url.Parse(c.StatsPush)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("%w: stats push url %q, want ws:// or wss://", ErrInvalidConfig, c.StatsPush)
		}
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("%w: negative drain timeout %s", ErrInvalidConfig, c.DrainTimeout)
	}
	return nil
}
