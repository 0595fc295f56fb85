package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/trailchat/pkg/config"
	"github.com/weiawesome/trailchat/pkg/database"
	"github.com/weiawesome/trailchat/pkg/log"
	"github.com/weiawesome/trailchat/pkg/pubsub"
)

type Config struct {
	Server     ServerConfig
	WebSocket  WebSocketConfig
	Auth       AuthConfig
	Database   database.Config
	Store      StoreConfig
	Cassandra  CassandraConfig
	Redis      RedisConfig
	PubSub     pubsub.Config
	Cache      CacheConfig
	Dispatcher DispatcherConfig
	Room       RoomConfig
	Log        log.Config
}

type ServerConfig struct {
	Host       string
	WSPort     int    `mapstructure:"ws_port"`
	APIPort    int    `mapstructure:"api_port"`
	GRPCPort   int    `mapstructure:"grpc_port"`
	InstanceID string `mapstructure:"instance_id"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string
}

// StoreConfig selects the message store backend.
type StoreConfig struct {
	Driver        string        // sql, cassandra
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	PendingBatch  int           `mapstructure:"pending_batch"`
}

type CassandraConfig struct {
	Hosts           []string
	Keyspace        string
	Consistency     string
	Username        string
	Password        string
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	Timeout         time.Duration
	NumConns        int `mapstructure:"num_conns"`
	MaxPreparedStmt int `mapstructure:"max_prepared_stmt"`
}

type RedisConfig struct {
	Address           string
	Password          string
	DB                int
	PresencePrefix    string        `mapstructure:"presence_prefix"`
	PresenceTTL       time.Duration `mapstructure:"presence_ttl"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type CacheConfig struct {
	Enabled bool
	Prefix  string
	TTL     time.Duration
}

type DispatcherConfig struct {
	Workers   int
	QueueSize int `mapstructure:"queue_size"`
}

type RoomConfig struct {
	MaxParticipants int `mapstructure:"max_participants"`
	UpdateRetries   int `mapstructure:"update_retries"`
}

// Load reads ./config/config.yaml and the environment.
func Load() (*Config, error) {
	return LoadFrom("./config")
}

// LoadFrom reads config.yaml from dir and the environment.
func LoadFrom(dir string) (*Config, error) {
	v, err := pkgconfig.Load(dir, "config")
	if err != nil {
		return nil, err
	}

	setDefaults(v)

	// Override from environment
	v.BindEnv("server.ws_port", "WS_PORT")
	v.BindEnv("server.api_port", "API_PORT")
	v.BindEnv("server.grpc_port", "GRPC_PORT")
	v.BindEnv("server.instance_id", "INSTANCE_ID")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("store.driver", "STORE_DRIVER")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.Store.Retention = pkgconfig.Duration(v, "store.retention", 7*24*time.Hour)
	cfg.Store.SweepInterval = pkgconfig.Duration(v, "store.sweep_interval", 10*time.Minute)
	cfg.Cassandra.ConnectTimeout = pkgconfig.Duration(v, "cassandra.connect_timeout", 10*time.Second)
	cfg.Cassandra.Timeout = pkgconfig.Duration(v, "cassandra.timeout", 5*time.Second)
	cfg.Redis.PresenceTTL = pkgconfig.Duration(v, "redis.presence_ttl", 90*time.Second)
	cfg.Redis.HeartbeatInterval = pkgconfig.Duration(v, "redis.heartbeat_interval", 30*time.Second)
	cfg.Cache.TTL = pkgconfig.Duration(v, "cache.ttl", 5*time.Minute)
	cfg.PubSub.Redis.ReadTimeout = pkgconfig.Duration(v, "pubsub.redis.read_timeout", 3*time.Second)
	cfg.PubSub.Redis.WriteTimeout = pkgconfig.Duration(v, "pubsub.redis.write_timeout", 3*time.Second)

	if cfg.Server.InstanceID == "" {
		cfg.Server.InstanceID = defaultInstanceID()
	}
	if cfg.PubSub.Redis.Address == "" {
		cfg.PubSub.Redis.Address = cfg.Redis.Address
		cfg.PubSub.Redis.Password = cfg.Redis.Password
		cfg.PubSub.Redis.DB = cfg.Redis.DB
	}
	if cfg.PubSub.Kafka.GroupID == "" {
		cfg.PubSub.Kafka.GroupID = "trailchat-" + cfg.Server.InstanceID
	}
	cfg.Log.InstanceID = cfg.Server.InstanceID

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.ws_port", 8090)
	v.SetDefault("server.api_port", 8091)
	v.SetDefault("server.grpc_port", 50060)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("auth.issuer", "")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "trailchat.db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("store.driver", "sql")
	v.SetDefault("store.retention", "168h")
	v.SetDefault("store.sweep_interval", "10m")
	v.SetDefault("store.pending_batch", 100)
	v.SetDefault("cassandra.hosts", []string{"localhost"})
	v.SetDefault("cassandra.keyspace", "trailchat")
	v.SetDefault("cassandra.consistency", "LOCAL_QUORUM")
	v.SetDefault("cassandra.num_conns", 2)
	v.SetDefault("cassandra.max_prepared_stmt", 1000)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.presence_prefix", "presence")
	v.SetDefault("redis.presence_ttl", "90s")
	v.SetDefault("redis.heartbeat_interval", "30s")
	v.SetDefault("pubsub.driver", pubsub.DriverRedis)
	v.SetDefault("pubsub.redis.pool_size", 10)
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.partitions", 4)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.prefix", "chat:room")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("dispatcher.workers", 8)
	v.SetDefault("dispatcher.queue_size", 1024)
	v.SetDefault("room.max_participants", 100)
	v.SetDefault("room.update_retries", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "trailchat")
}

func (c *Config) validate() error {
	var problems []string
	if c.Auth.JWTSecret == "" {
		problems = append(problems, "auth.jwt_secret is required")
	}
	if c.Store.Driver != "sql" && c.Store.Driver != "cassandra" {
		problems = append(problems, fmt.Sprintf("store.driver %q must be sql or cassandra", c.Store.Driver))
	}
	if c.Store.Retention <= 0 {
		problems = append(problems, "store.retention must be positive")
	}
	if c.Store.SweepInterval <= 0 {
		problems = append(problems, "store.sweep_interval must be positive")
	}
	if c.Store.PendingBatch < 1 || c.Store.PendingBatch > 100 {
		problems = append(problems, fmt.Sprintf("store.pending_batch %d must be between 1 and 100", c.Store.PendingBatch))
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.PongWait <= 0 || c.WebSocket.WriteWait <= 0 {
		problems = append(problems, "websocket.ping_interval, pong_wait and write_wait must be positive")
	}
	if c.Redis.PresenceTTL <= 0 || c.Redis.HeartbeatInterval <= 0 {
		problems = append(problems, "redis.presence_ttl and redis.heartbeat_interval must be positive")
	}
	if c.Redis.HeartbeatInterval >= c.Redis.PresenceTTL {
		problems = append(problems, "redis.heartbeat_interval must be shorter than redis.presence_ttl")
	}
	if c.Dispatcher.Workers <= 0 || c.Dispatcher.QueueSize <= 0 {
		problems = append(problems, "dispatcher.workers and dispatcher.queue_size must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func defaultInstanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host + "-" + uuid.NewString()[:8]
	}
	return uuid.NewString()
}
