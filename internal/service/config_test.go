package service_test

import (
	"strings"
	"testing"

	"github.com/CZERTAINLY/leadseeker/internal/model"
	"github.com/CZERTAINLY/leadseeker/internal/service"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const overridesConfig = `
verbose: true
upstream:
  url: http://provider.example.com:9000
  timeout: 5s
server:
  addr: 127.0.0.1:8181
`

func TestOverrides(t *testing.T) {
	// can't be parallel as it sets the environment
	t.Setenv("LEADSEEKER_UPSTREAM_TOKEN", "s3cret")
	t.Setenv("LEADSEEKER_STORE_PATH", "/tmp/leadseeker.db")

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(overridesConfig)))
	require.NoError(t, service.BindEnv(v))

	o, err := service.ParseOverrides(v)
	require.NoError(t, err)
	require.True(t, o.Verbose)
	require.Equal(t, "s3cret", o.Upstream.Token)

	cfg := model.DefaultConfig(t.Context())
	require.NoError(t, o.Apply(&cfg))
	require.True(t, cfg.Verbose)
	require.Equal(t, "provider.example.com:9000", cfg.Upstream.URL.Host)
	require.Equal(t, "s3cret", cfg.Upstream.Token)
	require.Equal(t, "5s", cfg.Upstream.Timeout)
	require.Equal(t, "127.0.0.1:8181", cfg.Server.Addr.ListenAddr())
	require.NotNil(t, cfg.Store)
	require.True(t, cfg.Store.Enabled)
	require.Equal(t, "/tmp/leadseeker.db", cfg.Store.Path)
}

func TestOverrides_Empty(t *testing.T) {
	t.Parallel()
	cfg := model.DefaultConfig(t.Context())
	want := model.DefaultConfig(t.Context())
	require.NoError(t, service.Overrides{}.Apply(&cfg))
	require.Equal(t, want.Upstream.URL.String(), cfg.Upstream.URL.String())
	require.Equal(t, want.Store, cfg.Store)
	require.False(t, cfg.Verbose)
}

func TestOverrides_Invalid(t *testing.T) {
	t.Parallel()
	var o service.Overrides
	o.Upstream.URL = "localhost"
	cfg := model.DefaultConfig(t.Context())
	require.ErrorContains(t, o.Apply(&cfg), "upstream.url")

	o = service.Overrides{}
	o.Upstream.Timeout = "soon"
	require.ErrorContains(t, o.Apply(&cfg), "upstream.timeout")
}
