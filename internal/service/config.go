package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/CZERTAINLY/leadseeker/internal/model"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding the config
// file, e.g. LEADSEEKER_UPSTREAM_URL.
const EnvPrefix = "LEADSEEKER"

var overrideKeys = []string{
	"verbose",
	"upstream.url",
	"upstream.token",
	"upstream.timeout",
	"server.addr",
	"store.path",
}

// Overrides are the settings which can be changed without editing the
// config file. Zero values mean no override.
type Overrides struct {
	Verbose  bool `mapstructure:"verbose"`
	Upstream struct {
		URL     string `mapstructure:"url"`
		Token   string `mapstructure:"token"`
		Timeout string `mapstructure:"timeout"`
	} `mapstructure:"upstream"`
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	Store struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"store"`
}

// BindEnv binds every override key to its LEADSEEKER_ environment variable.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range overrideKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

func ParseOverrides(v *viper.Viper) (Overrides, error) {
	var o Overrides
	err := v.Unmarshal(&o)
	return o, err
}

// Apply changes cfg in place. Setting store.path enables the store.
func (o Overrides) Apply(cfg *model.Config) error {
	if o.Verbose {
		cfg.Verbose = true
	}
	if o.Upstream.URL != "" {
		var u model.URL
		if err := u.UnmarshalText([]byte(o.Upstream.URL)); err != nil {
			return fmt.Errorf("upstream.url: %w", err)
		}
		cfg.Upstream.URL = u
	}
	if o.Upstream.Token != "" {
		cfg.Upstream.Token = o.Upstream.Token
	}
	if o.Upstream.Timeout != "" {
		if _, err := time.ParseDuration(o.Upstream.Timeout); err != nil {
			return fmt.Errorf("upstream.timeout: %w", err)
		}
		cfg.Upstream.Timeout = o.Upstream.Timeout
	}
	if o.Server.Addr != "" {
		var addr model.TCPAddr
		if err := addr.UnmarshalText([]byte(o.Server.Addr)); err != nil {
			return fmt.Errorf("server.addr: %w", err)
		}
		cfg.Server = &model.Server{Addr: addr}
	}
	if o.Store.Path != "" {
		cfg.Store = &model.Store{Enabled: true, Path: o.Store.Path}
	}
	return nil
}
