// Package serv wires a core.Source from configuration: it reads and
// validates the config, builds the logger and opens the store.
package serv

import (
	"context"
	"os"
	"reflect"

	"github.com/dosco/mongosource/core"
	"github.com/dosco/mongosource/serv/internal/util"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NewLogger returns the process logger, logging at level.
func NewLogger(json bool, level zap.AtomicLevel) *zap.Logger {
	return util.NewLogger(os.Stderr, json, level)
}

// Level returns an adjustable level set to the configured one.
func (c *Config) Level() (zap.AtomicLevel, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return level, errors.Wrapf(err, "invalid log level %q", c.LogLevel)
	}
	return level, nil
}

// NewSource opens the configured store. The ping must succeed within
// database.ping_timeout.
func NewSource(ctx context.Context, conf *Config, log *zap.Logger) (*core.Source, error) {
	if conf.Database.PingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, conf.Database.PingTimeout)
		defer cancel()
	}

	var opts []core.Option
	if log != nil {
		opts = append(opts, core.OptionSetLogger(log.Named("source").Sugar()))
	}

	src, err := core.Open(ctx, conf.ConnectOptions(), opts...)
	if err != nil {
		return nil, err
	}

	if log != nil {
		log.Sugar().Infow("connected", "database", conf.Database.Name, "host", conf.Database.Host)
	}
	return src, nil
}

// WatchConfig re-reads the config file whenever it changes and applies the
// new log level. Other settings take effect on restart.
func WatchConfig(conf *Config, level zap.AtomicLevel, log *zap.SugaredLogger) error {
	if conf.viper.ConfigFileUsed() == "" {
		return errors.New("config was not read from a file")
	}
	conf.viper.OnConfigChange(onConfigChange(conf, level, log))
	conf.viper.WatchConfig()
	return nil
}

func onConfigChange(conf *Config, level zap.AtomicLevel, log *zap.SugaredLogger) func(fsnotify.Event) {
	return func(e fsnotify.Event) {
		next := &Config{viper: conf.viper}
		if err := next.load(); err != nil {
			log.Errorw("config reload failed", "file", e.Name, "error", err)
			return
		}

		l, err := next.Level()
		if err != nil {
			log.Errorw("config reload failed", "file", e.Name, "error", err)
			return
		}
		level.SetLevel(l.Level())

		if !reflect.DeepEqual(next.Database, conf.Database) {
			log.Warnw("database settings changed, restart to apply", "file", e.Name)
		}
		log.Infow("config reloaded", "file", e.Name, "log_level", next.LogLevel)
	}
}
