package config

// Config 配置主体
type Config struct {
	Server              ServerConfig        `mapstructure:"server"`
	DB                  DBConfig            `mapstructure:"database"`
	Redis               RedisConfig         `mapstructure:"redis"`
	Mongo               MongoConfig         `mapstructure:"mongo"`
	MinIO               MinIOConfig         `mapstructure:"minio"`
	Logstash            LogstashConfig      `mapstructure:"logstash"`
	Identity            IdentityConfig      `mapstructure:"identity"`
	IM                  IMConfig            `mapstructure:"im"`
	Cron                CronConfig          `mapstructure:"cron"`
	Kafka               KafkaConfig         `mapstructure:"kafka"`
	KafkaFollowConsumer KafkaFollowConsumer `mapstructure:"kafka_follow_consumer"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig 数据库配置
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// MongoConfig MongoDB配置，事务需要副本集
type MongoConfig struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
}

// MinIOConfig MinIO配置
type MinIOConfig struct {
	InternalEndpoint string `mapstructure:"internal_endpoint"`
	ExternalEndpoint string `mapstructure:"external_endpoint"`
	AccessKey        string `mapstructure:"access_key"`
	SecretKey        string `mapstructure:"secret_key"`
	MediaBucket      string `mapstructure:"media_bucket"`
	InternalUseSSL   bool   `mapstructure:"internal_use_ssl"`
	MaxUploadMB      int64  `mapstructure:"max_upload_mb"`
}

type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
	Level   string `mapstructure:"level"`
}

// IdentityConfig 外部身份提供方签发的令牌
type IdentityConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// IMConfig 即时通讯参数
type IMConfig struct {
	WriteTimeoutMs      int   `mapstructure:"write_timeout_ms"`
	HistoryPageSize     int   `mapstructure:"history_page_size"`
	DisappearingSeconds int64 `mapstructure:"disappearing_seconds"`
	SendBuffer          int   `mapstructure:"send_buffer"`
	MaxFrameBytes       int64 `mapstructure:"max_frame_bytes"`
	FollowerCacheMin    int   `mapstructure:"follower_cache_min"`
	LastSeenTTLHours    int   `mapstructure:"last_seen_ttl_hours"`
}

// CronConfig 定时任务表达式
type CronConfig struct {
	DisappearingPurge string `mapstructure:"disappearing_purge"`
	PresenceReconcile string `mapstructure:"presence_reconcile"`
}

type KafkaConfig struct {
	Enable   bool           `mapstructure:"enable"`
	Brokers  []string       `mapstructure:"brokers"`
	Sasl     SaslConfig     `mapstructure:"sasl"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
}

type SaslConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type ConsumerConfig struct {
	SessionTimeout    int `mapstructure:"session_timeout"`
	HeartbeatInterval int `mapstructure:"heartbeat_interval"`
	RebalanceTimeout  int `mapstructure:"rebalance_timeout"`
	MaxProcessingTime int `mapstructure:"max_processing_time"`
}

type KafkaFollowConsumer struct {
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}
