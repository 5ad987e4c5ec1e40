// Package config loads Portway's process-level configuration: listen
// address, the endpoints-root path, and the default timeouts and cache
// settings every component falls back to absent a per-endpoint override.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/drone/envsubst"
	"gopkg.in/yaml.v2"
)

// Config is the root config for the portway process.
type Config struct {
	HTTPListenAddress string `yaml:"http_listen_address"`
	HTTPListenPort    int    `yaml:"http_listen_port"`

	EndpointsRoot      string `yaml:"endpoints_root"`
	EnvironmentsRoot   string `yaml:"environments_root"`
	TokenStorePath     string `yaml:"token_store_path"`
	FilesRoot          string `yaml:"files_root"`

	RequestBodyLimitBytes int64 `yaml:"request_body_limit_bytes"`
	HeaderLimitBytes      int   `yaml:"header_limit_bytes"`

	DefaultCommandTimeout time.Duration `yaml:"default_command_timeout"`
	ConnectTimeout        time.Duration `yaml:"connect_timeout"`
	SingleFlightWait      time.Duration `yaml:"single_flight_wait"`
	SingleFlightLease     time.Duration `yaml:"single_flight_lease"`

	DefaultCacheTTL time.Duration `yaml:"default_cache_ttl"`
	CacheProvider   string        `yaml:"cache_provider"` // "memory" | "redis"
	RedisAddr       string        `yaml:"redis_addr"`

	IPRateLimitCapacity    int           `yaml:"ip_rate_limit_capacity"`
	IPRateLimitWindow      time.Duration `yaml:"ip_rate_limit_window"`
	TokenRateLimitCapacity int           `yaml:"token_rate_limit_capacity"`
	TokenRateLimitWindow   time.Duration `yaml:"token_rate_limit_window"`

	ODataMaxTop int `yaml:"odata_max_top"`

	SQLPoolMin int `yaml:"sql_pool_min"`
	SQLPoolMax int `yaml:"sql_pool_max"`

	AuditQueueSize int `yaml:"audit_queue_size"`
}

// NewDefaultConfig creates a new Config with default values applied.
func NewDefaultConfig() *Config {
	defaultConfig := &Config{}
	defaultFS := flag.NewFlagSet("", flag.PanicOnError)
	defaultConfig.RegisterFlagsAndApplyDefaults("", defaultFS)
	return defaultConfig
}

// RegisterFlagsAndApplyDefaults registers flags and sets default values.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.HTTPListenAddress, prefix+"server.http-listen-address", "0.0.0.0", "HTTP server listen address.")
	f.IntVar(&c.HTTPListenPort, prefix+"server.http-listen-port", 8080, "HTTP server listen port.")

	f.StringVar(&c.EndpointsRoot, prefix+"catalog.endpoints-root", "./endpoints", "Root directory of the endpoint descriptor tree.")
	f.StringVar(&c.EnvironmentsRoot, prefix+"catalog.environments-root", "./environments", "Root directory of environment settings.")
	f.StringVar(&c.TokenStorePath, prefix+"auth.token-store-path", "./tokens.db", "Path to the token store.")
	f.StringVar(&c.FilesRoot, prefix+"catalog.files-root", "./files", "Root directory for Static/Files endpoint content.")

	c.RequestBodyLimitBytes = 10 * 1024 * 1024
	f.Int64Var(&c.RequestBodyLimitBytes, prefix+"limits.request-body-bytes", c.RequestBodyLimitBytes, "Maximum request body size in bytes.")
	c.HeaderLimitBytes = 32 * 1024
	f.IntVar(&c.HeaderLimitBytes, prefix+"limits.header-bytes", c.HeaderLimitBytes, "Maximum request header size in bytes.")

	f.DurationVar(&c.DefaultCommandTimeout, prefix+"timeouts.command", 30*time.Second, "Default SQL/upstream command timeout.")
	f.DurationVar(&c.ConnectTimeout, prefix+"timeouts.connect", 30*time.Second, "Upstream dial timeout.")
	f.DurationVar(&c.SingleFlightWait, prefix+"cache.single-flight-wait", 10*time.Second, "Max time to wait for another caller's fill.")
	f.DurationVar(&c.SingleFlightLease, prefix+"cache.single-flight-lease", 30*time.Second, "Single-flight lock lease duration.")

	f.DurationVar(&c.DefaultCacheTTL, prefix+"cache.default-ttl", 60*time.Second, "Default response cache TTL.")
	f.StringVar(&c.CacheProvider, prefix+"cache.provider", "memory", "Cache provider: memory or redis.")
	f.StringVar(&c.RedisAddr, prefix+"cache.redis-addr", "127.0.0.1:6379", "Redis address, when cache.provider=redis.")

	f.IntVar(&c.IPRateLimitCapacity, prefix+"ratelimit.ip-capacity", 120, "Token bucket capacity for the per-IP family.")
	f.DurationVar(&c.IPRateLimitWindow, prefix+"ratelimit.ip-window", 60*time.Second, "Refill window for the per-IP family.")
	f.IntVar(&c.TokenRateLimitCapacity, prefix+"ratelimit.token-capacity", 600, "Token bucket capacity for the per-token family.")
	f.DurationVar(&c.TokenRateLimitWindow, prefix+"ratelimit.token-window", 60*time.Second, "Refill window for the per-token family.")

	f.IntVar(&c.ODataMaxTop, prefix+"odata.max-top", 1000, "Maximum allowed $top value.")

	f.IntVar(&c.SQLPoolMin, prefix+"sql.pool-min", 5, "Minimum SQL connections per environment.")
	f.IntVar(&c.SQLPoolMax, prefix+"sql.pool-max", 100, "Maximum SQL connections per environment.")

	f.IntVar(&c.AuditQueueSize, prefix+"audit.queue-size", 10000, "Bounded traffic-audit queue size.")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.EndpointsRoot == "" {
		return fmt.Errorf("catalog.endpoints-root must be set")
	}
	if c.SQLPoolMin > c.SQLPoolMax {
		return fmt.Errorf("sql.pool-min (%d) must not exceed sql.pool-max (%d)", c.SQLPoolMin, c.SQLPoolMax)
	}
	if c.CacheProvider != "memory" && c.CacheProvider != "redis" {
		return fmt.Errorf("cache.provider must be 'memory' or 'redis', got %q", c.CacheProvider)
	}
	return nil
}

// ConfigWarning bundles a message and explanation, surfaced at startup.
type ConfigWarning struct {
	Message string
	Explain string
}

// CheckConfig checks for suspect-but-not-invalid settings.
func (c *Config) CheckConfig() []ConfigWarning {
	var warnings []ConfigWarning
	if c.IPRateLimitCapacity < 1 {
		warnings = append(warnings, ConfigWarning{
			Message: "ratelimit.ip-capacity is less than 1",
			Explain: "every request from every IP will be rate-limited",
		})
	}
	if c.DefaultCacheTTL <= 0 {
		warnings = append(warnings, ConfigWarning{
			Message: "cache.default-ttl is zero or negative",
			Explain: "proxy responses will never be served from cache",
		})
	}
	return warnings
}

// Load reads configFile (optionally expanding ${VAR} references), overlays
// it onto defaults, and returns the resulting Config.
func Load(configFile string, expandEnv bool) (*Config, error) {
	cfg := NewDefaultConfig()
	if configFile == "" {
		return cfg, nil
	}
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read configFile %s: %w", configFile, err)
	}
	if expandEnv {
		s, err := envsubst.EvalEnv(string(buf))
		if err != nil {
			return nil, fmt.Errorf("failed to expand env vars from configFile %s: %w", configFile, err)
		}
		buf = []byte(s)
	}
	if err := yaml.UnmarshalStrict(buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configFile %s: %w", configFile, err)
	}
	return cfg, nil
}

// ExampleConfig returns an example configuration YAML document.
func ExampleConfig(w io.Writer) {
	fmt.Fprint(w, `# Portway gateway configuration
http_listen_address: "0.0.0.0"
http_listen_port: 8080

endpoints_root: "/etc/portway/endpoints"
environments_root: "/etc/portway/environments"
token_store_path: "/var/lib/portway/tokens.db"

default_command_timeout: 30s
connect_timeout: 30s

default_cache_ttl: 60s
cache_provider: "redis"
redis_addr: "redis:6379"

ip_rate_limit_capacity: 120
ip_rate_limit_window: 60s
token_rate_limit_capacity: 600
token_rate_limit_window: 60s

odata_max_top: 1000

sql_pool_min: 5
sql_pool_max: 100

audit_queue_size: 10000
`)
}
