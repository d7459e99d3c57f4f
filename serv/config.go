package serv

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dosco/mongosource/mongodriver"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Config is the configuration of a mongosource process.
type Config struct {
	// Application name is used in log messages and sent to the server
	AppName string `mapstructure:"app_name"`

	// Log level: debug, info, warn or error
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	// Log format: auto, json or console. Auto logs json in production.
	LogFormat string `mapstructure:"log_format" validate:"oneof=auto json console"`

	Production bool `mapstructure:"production"`

	// The directory the config file was read from
	ConfigPath string `mapstructure:"config_path"`

	Database Database `mapstructure:"database"`

	viper *viper.Viper
}

// Database holds the store connection settings.
type Database struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name" validate:"required"`

	// Driver options, see mongodriver.ConnectOptions
	Options map[string]any `mapstructure:"options"`

	PingTimeout time.Duration `mapstructure:"ping_timeout" validate:"gte=0"`
}

const envPrefix = "MS"

var validate = validator.New()

// ReadInConfig function reads in the config file for the environment specified in the GO_ENV
// environment variable.
func ReadInConfig(configFile string) (*Config, error) {
	return readInConfig(configFile, nil)
}

// ReadInConfigFS is the same as ReadInConfig but it also takes a filesytem as an argument
func ReadInConfigFS(configFile string, fs afero.Fs) (*Config, error) {
	return readInConfig(configFile, fs)
}

func readInConfig(configFile string, fs afero.Fs) (*Config, error) {
	cp := filepath.Dir(configFile)
	vi := newViper(cp, filepath.Base(configFile))

	if fs != nil {
		vi.SetFs(fs)
	}

	if err := vi.ReadInConfig(); err != nil {
		return nil, err
	}

	if pcf := vi.GetString("inherits"); pcf != "" {
		cf := vi.ConfigFileUsed()
		vi = newViper(cp, pcf)
		if fs != nil {
			vi.SetFs(fs)
		}

		if err := vi.ReadInConfig(); err != nil {
			return nil, err
		}

		if value := vi.GetString("inherits"); value != "" {
			return nil, fmt.Errorf("inherited config '%s' cannot itself inherit '%s'", pcf, value)
		}

		vi.SetConfigFile(cf)

		if err := vi.MergeInConfig(); err != nil {
			return nil, err
		}
	}

	c := &Config{viper: vi}
	if err := c.load(); err != nil {
		return nil, err
	}
	c.ConfigPath = cp
	return c, nil
}

// NewConfig function creates a new configuration from the provided config string
func NewConfig(config, format string) (*Config, error) {
	if format == "" {
		format = "yaml"
	}

	vi := newViperWithDefaults()
	vi.SetConfigType(format)

	if err := vi.ReadConfig(strings.NewReader(config)); err != nil {
		return nil, err
	}

	c := &Config{viper: vi}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// load decodes and validates the viper state into c.
func (c *Config) load() error {
	if err := c.viper.Unmarshal(c); err != nil {
		return fmt.Errorf("failed to decode config, %v", err)
	}

	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// newViperWithDefaults returns a new viper instance with the default settings
func newViperWithDefaults() *viper.Viper {
	vi := viper.New()

	vi.SetDefault("app_name", "mongosource")
	vi.SetDefault("log_level", "info")
	vi.SetDefault("log_format", "auto")
	vi.SetDefault("production", false)

	vi.SetDefault("database.host", "localhost")
	vi.SetDefault("database.port", 27017)
	vi.SetDefault("database.user", "")
	vi.SetDefault("database.password", "")
	vi.SetDefault("database.name", "")
	vi.SetDefault("database.ping_timeout", "10s")

	vi.SetDefault("env", "development")
	vi.BindEnv("env", "GO_ENV") //nolint:errcheck

	// MS_DATABASE_HOST overrides database.host
	vi.SetEnvPrefix(envPrefix)
	vi.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vi.AutomaticEnv()

	return vi
}

// newViper returns a new viper instance with the default settings
func newViper(configPath, configFile string) *viper.Viper {
	vi := newViperWithDefaults()
	vi.SetConfigName(strings.TrimSuffix(configFile, filepath.Ext(configFile)))

	if configPath == "" {
		vi.AddConfigPath("./config")
	} else {
		vi.AddConfigPath(configPath)
	}

	return vi
}

// ShouldUseJSONLogs returns true if logs should be in JSON format.
func (c *Config) ShouldUseJSONLogs() bool {
	if c.LogFormat == "json" {
		return true
	}
	return c.LogFormat == "auto" && c.Production
}

// ConnectOptions returns the store connection settings.
func (c *Config) ConnectOptions() mongodriver.ConnectOptions {
	opts := make(map[string]any, len(c.Database.Options)+1)
	for k, v := range c.Database.Options {
		opts[k] = v
	}
	if _, ok := opts["app_name"]; !ok && c.AppName != "" {
		opts["app_name"] = c.AppName
	}

	return mongodriver.ConnectOptions{
		Host:     c.Database.address(),
		User:     c.Database.User,
		Password: c.Database.Password,
		Database: c.Database.Name,
		Options:  opts,
	}
}

// address joins host and port unless host already carries a port, a host
// list or a full connection string.
func (d Database) address() string {
	if d.Port == 0 || strings.ContainsAny(d.Host, ",/") {
		return d.Host
	}
	if _, _, err := net.SplitHostPort(d.Host); err == nil {
		return d.Host
	}
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// GetConfigName returns the name of the configuration
func GetConfigName() string {
	goEnv := strings.TrimSpace(strings.ToLower(os.Getenv("GO_ENV")))

	switch goEnv {
	case "production", "prod":
		return "prod"

	case "staging", "stage":
		return "stage"

	case "testing", "test":
		return "test"

	case "development", "dev", "":
		return "dev"

	default:
		return goEnv
	}
}
