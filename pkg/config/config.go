package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Polygon struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
	} `yaml:"polygon"`
	Hub struct {
		SubscriberQueue int    `yaml:"subscriber_queue"`
		Policy          string `yaml:"policy"` // evict or drop
	} `yaml:"hub"`
	Inference struct {
		QueueSize    int     `yaml:"queue_size"`
		MinImbalance float64 `yaml:"min_imbalance"`
	} `yaml:"inference"`
	Sentiment struct {
		Key          string        `yaml:"key"`
		PollInterval time.Duration `yaml:"poll_interval"`
		Default      struct {
			Sentiment float64 `yaml:"sentiment"`
			Impact    int     `yaml:"impact"`
		} `yaml:"default"`
		Redis struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"sentiment"`
	Quotes struct {
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"quotes"`
	Archive struct {
		Backend string `yaml:"backend"` // none, kafka, or clickhouse
		MaxRPS  int    `yaml:"max_rps"`
		Buffer  int    `yaml:"buffer"`
	} `yaml:"archive"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port"`
		Database     string        `yaml:"database"`
		User         string        `yaml:"user"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		AsyncInsert  bool          `yaml:"async_insert"`
		WaitForAsync bool          `yaml:"wait_for_async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"clickhouse"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		c.Polygon.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Polygon.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("ARCHIVE_BACKEND"); v != "" {
		c.Archive.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Sentiment.Redis.Addr = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Polygon.WebSocketURL == "" {
		c.Polygon.WebSocketURL = "wss://socket.polygon.io/forex"
	}
	if len(c.Polygon.Symbols) == 0 {
		c.Polygon.Symbols = []string{"EUR/USD", "GBP/USD", "USD/JPY", "XAU/USD", "BTC/USD"}
	}
	if c.Polygon.ReconnectDelay <= 0 {
		c.Polygon.ReconnectDelay = 5 * time.Second
	}
	if c.Polygon.PingInterval <= 0 {
		c.Polygon.PingInterval = 15 * time.Second
	}
	if c.Polygon.ReadTimeout <= 0 {
		c.Polygon.ReadTimeout = 60 * time.Second
	}
	if c.Archive.Backend == "" {
		c.Archive.Backend = "none"
	}
}

// Validate checks if the configuration is valid.
// Note: the Polygon API key is deliberately not required here; its absence
// must fail the first authentication attempt, not config load.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Archive.Backend {
	case "none", "kafka", "clickhouse":
	default:
		return fmt.Errorf("archive.backend must be 'none', 'kafka' or 'clickhouse', got '%s'", c.Archive.Backend)
	}
	switch c.Hub.Policy {
	case "", "evict", "drop":
	default:
		return fmt.Errorf("hub.policy must be 'evict' or 'drop', got '%s'", c.Hub.Policy)
	}
	for _, s := range c.Polygon.Symbols {
		if strings.Count(s, "/") != 1 {
			return fmt.Errorf("polygon.symbols entries must be BASE/QUOTE, got '%s'", s)
		}
	}
	return nil
}
