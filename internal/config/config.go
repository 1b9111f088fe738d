package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	SMTP        SMTPConfig
	Checker     CheckerConfig
	Scheduler   SchedulerConfig
	RemoteWrite RemoteWriteConfig
}

type ServerConfig struct {
	Port      string
	Mode      string
	JWTSecret string
	// CronSecret guards the batch trigger endpoint. Empty means the
	// endpoint accepts unauthenticated manual calls.
	CronSecret string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdleConns   int
}

type RedisConfig struct {
	URL string
}

type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

type CheckerConfig struct {
	MaxAttempts int
	BaseTimeout time.Duration
	TimeoutStep time.Duration
	RetryDelay  time.Duration
}

type SchedulerConfig struct {
	WorkerCount  int
	ForceRefresh bool
	Interval     time.Duration
	BatchTimeout time.Duration
	ProbesPerSec float64
	ProbeBurst   int
	LockTTL      time.Duration
	ReportTTL    time.Duration
}

type RemoteWriteConfig struct {
	URL           string
	BatchSize     int
	FlushInterval time.Duration
	AuthToken     string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("CERTSENTRY")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.maxconnections", 25)
	viper.SetDefault("database.maxidleconns", 5)
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("checker.maxattempts", 3)
	viper.SetDefault("checker.basetimeout", "5s")
	viper.SetDefault("checker.timeoutstep", "2s")
	viper.SetDefault("checker.retrydelay", "1s")
	viper.SetDefault("scheduler.workercount", 10)
	viper.SetDefault("scheduler.forcerefresh", true)
	viper.SetDefault("scheduler.interval", "24h")
	viper.SetDefault("scheduler.batchtimeout", "30m")
	viper.SetDefault("scheduler.probespersec", 5.0)
	viper.SetDefault("scheduler.probeburst", 10)
	viper.SetDefault("scheduler.lockttl", "60s")
	viper.SetDefault("scheduler.reportttl", "24h")
	viper.SetDefault("remotewrite.batchsize", 1000)
	viper.SetDefault("remotewrite.flushinterval", "10s")

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Server.JWTSecret = secret
	}
	if secret := os.Getenv("CRON_SECRET"); secret != "" {
		cfg.Server.CronSecret = secret
	}
	if pass := os.Getenv("SMTP_PASSWORD"); pass != "" {
		cfg.SMTP.Password = pass
	}
	if token := os.Getenv("REMOTE_WRITE_TOKEN"); token != "" {
		cfg.RemoteWrite.AuthToken = token
	}

	return &cfg, nil
}
