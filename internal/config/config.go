package config

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

// Config captures the full configuration surface for the application.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Scylla    ScyllaConfig    `mapstructure:"scylla"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Telephony TelephonyConfig `mapstructure:"telephony"`
	AISession AISessionConfig `mapstructure:"ai_session"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

type ScyllaConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Port        int           `mapstructure:"port"`
	Keyspace    string        `mapstructure:"keyspace"`
	Consistency string        `mapstructure:"consistency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	ClientID        string        `mapstructure:"client_id"`
	DispatchTopic   string        `mapstructure:"dispatch_topic"`
	LeadStatusTopic string        `mapstructure:"lead_status_topic"`
	ConsumerGroupID string        `mapstructure:"consumer_group_id"`
	CommitInterval  time.Duration `mapstructure:"commit_interval"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type TelemetryConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	ServiceVersion  string        `mapstructure:"service_version"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	TracingEnabled  bool          `mapstructure:"tracing_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DispatchConfig tunes the sequential dispatcher.
type DispatchConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	MaxPollDuration  time.Duration `mapstructure:"max_poll_duration"`
	MaxFetchFailures int           `mapstructure:"max_fetch_failures"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	PersistRetries   int           `mapstructure:"persist_retries"`
	PersistBackoff   time.Duration `mapstructure:"persist_backoff"`
	RunLockTTL       time.Duration `mapstructure:"run_lock_ttl"`
	RunLockPrefix    string        `mapstructure:"run_lock_prefix"`
}

type TelephonyConfig struct {
	ProviderName   string        `mapstructure:"provider_name"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type AISessionConfig struct {
	ProviderName   string        `mapstructure:"provider_name"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type SchedulerConfig struct {
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	CampaignBatchSize int           `mapstructure:"campaign_batch_size"`
}

type WorkerConfig struct {
	MaxConcurrentCampaigns int `mapstructure:"max_concurrent_campaigns"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("DIALER")
	v.SetEnvKeyReplacer(NewEnvReplacer())

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}

	return cfg, nil
}

// ApplyDefaults fills zero values with the documented defaults.
func (c *Config) ApplyDefaults() {
	d := &c.Dispatch
	if d.PollInterval <= 0 {
		d.PollInterval = 5 * time.Second
	}
	if d.MaxPollDuration <= 0 {
		d.MaxPollDuration = 10 * time.Minute
	}
	if d.MaxFetchFailures <= 0 {
		d.MaxFetchFailures = 5
	}
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = 3
	}
	if d.PersistRetries <= 0 {
		d.PersistRetries = 3
	}
	if d.PersistBackoff <= 0 {
		d.PersistBackoff = 200 * time.Millisecond
	}
	if d.RunLockTTL <= 0 {
		d.RunLockTTL = time.Minute
	}
	if d.RunLockPrefix == "" {
		d.RunLockPrefix = "dialer:campaign"
	}

	if c.Telephony.ProviderName == "" {
		c.Telephony.ProviderName = "simulated"
	}
	if c.Telephony.RequestTimeout <= 0 {
		c.Telephony.RequestTimeout = 10 * time.Second
	}
	if c.AISession.ProviderName == "" {
		c.AISession.ProviderName = "simulated"
	}
	if c.AISession.RequestTimeout <= 0 {
		c.AISession.RequestTimeout = 10 * time.Second
	}

	if c.Scheduler.TickInterval <= 0 {
		c.Scheduler.TickInterval = time.Minute
	}
	if c.Scheduler.CampaignBatchSize <= 0 {
		c.Scheduler.CampaignBatchSize = 200
	}
	if c.Worker.MaxConcurrentCampaigns <= 0 {
		c.Worker.MaxConcurrentCampaigns = 16
	}
}

// Validate checks the settings the dispatcher cannot run without.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Dispatch,
		validation.Field(&c.Dispatch.PollInterval, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.Dispatch.MaxPollDuration, validation.Required),
		validation.Field(&c.Dispatch.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.Dispatch.RunLockTTL, validation.Required, validation.Min(time.Second)),
	); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	providers := []any{"simulated", "rest"}
	if err := validation.ValidateStruct(&c.Telephony,
		validation.Field(&c.Telephony.ProviderName, validation.In(providers...)),
		validation.Field(&c.Telephony.BaseURL, validation.When(c.Telephony.ProviderName == "rest", validation.Required)),
	); err != nil {
		return fmt.Errorf("telephony: %w", err)
	}

	if err := validation.ValidateStruct(&c.AISession,
		validation.Field(&c.AISession.ProviderName, validation.In(providers...)),
		validation.Field(&c.AISession.BaseURL, validation.When(c.AISession.ProviderName == "rest", validation.Required)),
	); err != nil {
		return fmt.Errorf("ai_session: %w", err)
	}

	return nil
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}
