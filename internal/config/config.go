package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr           string
		RateLimitRPS   float64
		RateLimitBurst int
	}
	Log struct {
		Level string
	}
	Database struct {
		Path string
	}
	Downloads struct {
		Directory              string
		MetadataTimeoutSeconds int
		DownloadTimeoutSeconds int
		MaxSizeBytes           int64
		RetentionMaxAgeHours   int
		ListenPort             int
		MaxConcurrent          int
		UserAgent              string
		SweepSchedule          string
	}
	Storage struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
	Auth struct {
		AdminPassword     string
		AdminPasswordHash string
		JWTSecret         string
		TokenTTLMinutes   int
	}
}

func (c Config) MetadataTimeout() time.Duration {
	return time.Duration(c.Downloads.MetadataTimeoutSeconds) * time.Second
}

func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Downloads.DownloadTimeoutSeconds) * time.Second
}

func (c Config) RetentionMaxAge() time.Duration {
	return time.Duration(c.Downloads.RetentionMaxAgeHours) * time.Hour
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("MATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.ratelimitrps", 5.0)
	v.SetDefault("server.ratelimitburst", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("database.path", "data/mator.db")
	v.SetDefault("downloads.directory", "data/downloads")
	v.SetDefault("downloads.metadatatimeoutseconds", 60)
	v.SetDefault("downloads.downloadtimeoutseconds", 300)
	v.SetDefault("downloads.maxsizebytes", int64(500<<20))
	v.SetDefault("downloads.retentionmaxagehours", 1)
	v.SetDefault("downloads.listenport", 6881)
	v.SetDefault("downloads.maxconcurrent", 3)
	v.SetDefault("downloads.useragent", "mator/1.0")
	v.SetDefault("downloads.sweepschedule", "@every 30m")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "mator-archive")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("auth.adminpassword", "")
	v.SetDefault("auth.adminpasswordhash", "")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttlminutes", 60)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
