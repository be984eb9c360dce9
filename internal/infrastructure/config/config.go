package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Slot delete policies accepted in slots.delete_policy.
const (
	DeletePolicyCascade       = "cascade"
	DeletePolicyRetainHistory = "retain_history"
)

// Config is the root configuration structure for Slotlink Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Slots     SlotsConfig     `yaml:"slots"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig contains deployment identification.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Topics    MQTTTopicsConfig    `yaml:"topics"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// MQTTTopicsConfig names the device-facing topics.
// Devices in the field are flashed with these, so they rarely change.
type MQTTTopicsConfig struct {
	Data    string `yaml:"data"`
	Control string `yaml:"control"`
	Camera  string `yaml:"camera"`
	Status  string `yaml:"status"`
	// Presence is where the backend itself announces online/offline (LWT).
	Presence string `yaml:"presence"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	// DevMode returns password reset codes in the API response instead of only logging them.
	DevMode bool `yaml:"dev_mode"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// RedisConfig contains settings for the latest-value cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// LatestTTL is how long a slot's latest value is kept (seconds).
	LatestTTL int `yaml:"latest_ttl"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SlotsConfig contains slot registry limits and behaviour.
type SlotsConfig struct {
	MaxSlots     int    `yaml:"max_slots"`
	MaxImageSize int    `yaml:"max_image_size"`
	DeletePolicy string `yaml:"delete_policy"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT          JWTConfig       `yaml:"jwt"`
	Password     PasswordConfig  `yaml:"password"`
	ResetCodeTTL int             `yaml:"reset_code_ttl"`
	AdminSeed    AdminSeedConfig `yaml:"admin_seed"`
}

// PasswordConfig controls which passwords are accepted and how they are
// hashed. Existing hashes keep verifying after the Argon2 cost changes.
type PasswordConfig struct {
	MinLength int          `yaml:"min_length"`
	Argon2    Argon2Config `yaml:"argon2"`
}

// Argon2Config is the Argon2id cost applied to newly hashed passwords.
type Argon2Config struct {
	Iterations uint32 `yaml:"iterations"`
	MemoryKiB  uint32 `yaml:"memory_kib"`
	Threads    uint8  `yaml:"threads"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// AdminSeedConfig describes the account created on first boot.
// An empty password means a random one is generated and logged.
type AdminSeedConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SLOTLINK_SECTION_KEY
// For example: SLOTLINK_DATABASE_PATH, SLOTLINK_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Slotlink",
		},
		Database: DatabaseConfig{
			Path:        "./data/slotlink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "iot-backend-server",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Topics: MQTTTopicsConfig{
				Data:     "iot/data",
				Control:  "iot/control",
				Camera:   "iot/camera",
				Status:   "iot/status",
				Presence: "iot/backend/status",
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			LatestTTL: 86400,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Slots: SlotsConfig{
			MaxSlots:     20,
			MaxImageSize: 500 * 1024,
			DeletePolicy: DeletePolicyCascade,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 1440,
			},
			Password: PasswordConfig{
				MinLength: 6,
				Argon2: Argon2Config{
					Iterations: 3,
					MemoryKiB:  64 * 1024,
					Threads:    1,
				},
			},
			ResetCodeTTL: 15,
			AdminSeed: AdminSeedConfig{
				Email: "admin@admin.com",
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SLOTLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("SLOTLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SLOTLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SLOTLINK_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("SLOTLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SLOTLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API (PORT is what most PaaS hosts inject)
	if v := os.Getenv("SLOTLINK_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := firstEnv("SLOTLINK_API_PORT", "PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("SLOTLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Redis
	if v := os.Getenv("SLOTLINK_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SLOTLINK_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// Security
	if v := os.Getenv("SLOTLINK_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("SLOTLINK_ADMIN_PASSWORD"); v != "" {
		cfg.Security.AdminSeed.Password = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks the configuration for errors and security issues.
// All problems are reported together rather than one at a time.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Topics.Data == "" || c.MQTT.Topics.Control == "" ||
		c.MQTT.Topics.Camera == "" || c.MQTT.Topics.Status == "" {
		errs = append(errs, "mqtt.topics data, control, camera and status are required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Slots.MaxSlots < 1 {
		errs = append(errs, "slots.max_slots must be at least 1")
	}
	if c.Slots.MaxImageSize < 1 {
		errs = append(errs, "slots.max_image_size must be positive")
	}
	switch c.Slots.DeletePolicy {
	case DeletePolicyCascade, DeletePolicyRetainHistory:
	default:
		errs = append(errs, fmt.Sprintf("slots.delete_policy must be %q or %q", DeletePolicyCascade, DeletePolicyRetainHistory))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when redis is enabled")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Tokens gate slot configuration and device control; a short or empty
	// secret lets anyone mint an admin token.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set SLOTLINK_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	pw := c.Security.Password
	if pw.MinLength < 1 {
		errs = append(errs, "security.password.min_length must be at least 1")
	}
	if pw.Argon2.Iterations < 1 || pw.Argon2.Threads < 1 {
		errs = append(errs, "security.password.argon2 iterations and threads must be at least 1")
	} else if pw.Argon2.MemoryKiB < 8*uint32(pw.Argon2.Threads) {
		errs = append(errs, "security.password.argon2.memory_kib must be at least 8 per thread")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetResetCodeTTL returns the password reset code lifetime.
func (c *Config) GetResetCodeTTL() time.Duration {
	return time.Duration(c.Security.ResetCodeTTL) * time.Minute
}

// GetRedisLatestTTL returns how long latest values live in Redis.
func (c *Config) GetRedisLatestTTL() time.Duration {
	return time.Duration(c.Redis.LatestTTL) * time.Second
}
