package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// DefaultSecret signs sessions until an operator sets auth.secret.
	DefaultSecret = "change-me-autolot-secret"
	// DefaultAdminUsername and DefaultAdminPassword seed the bootstrap account.
	DefaultAdminUsername = "admin"
	DefaultAdminPassword = "adminpassword"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Database struct {
		Path string
	}
	Auth struct {
		Secret            string
		AdminUsername     string
		AdminPassword     string
		SessionTTLMinutes int
		CookieSecure      bool
	}
	Storage struct {
		Driver    string
		LocalDir  string
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
	Log struct {
		Level string
	}
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"addr":   "server.addr",
	"db":     "database.path",
	"images": "storage.localdir",
}

// Load reads configuration from environment variables, optional config files
// and, when flags is non-nil, command line flags (highest precedence).
func Load(flags *pflag.FlagSet) (Config, error) {
	_ = godotenv.Load() // optional .env; never overrides the real environment

	v := viper.New()
	v.SetEnvPrefix("AUTOLOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:5000")
	v.SetDefault("database.path", "data/site.db")
	v.SetDefault("auth.secret", DefaultSecret)
	v.SetDefault("auth.adminusername", DefaultAdminUsername)
	v.SetDefault("auth.adminpassword", DefaultAdminPassword)
	v.SetDefault("auth.sessionttlminutes", 24*60)
	v.SetDefault("auth.cookiesecure", false)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.localdir", "data/images")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "listings")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("log.level", "info")

	configFile := ""
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
		if f := flags.Lookup("config"); f != nil {
			configFile = f.Value.String()
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("auth secret is required")
	}
	if c.Auth.SessionTTLMinutes <= 0 {
		return errors.New("auth session ttl must be positive")
	}
	switch c.Storage.Driver {
	case "local":
		if c.Storage.LocalDir == "" {
			return errors.New("storage local dir is required")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("storage bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// UsingDefaultSecret reports whether sessions are signed with the built-in key.
func (c Config) UsingDefaultSecret() bool {
	return c.Auth.Secret == DefaultSecret
}
