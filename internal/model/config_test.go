package model_test

import (
	"strings"
	"testing"
	"time"

	"github.com/CZERTAINLY/leadseeker/internal/model"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	yml := `
version: 0
verbose: true
upstream:
  url: https://leads.example.com
  page_size: 25
  timeout: 15s
  kinds:
    registry-lookup: /v2/registry
server:
  addr: "127.0.0.1:8181"
store:
  enabled: true
notify:
  dir: /var/lib/leadseeker
  webhook:
    url: https://hooks.example.com/leads
schedule:
  - name: nightly
    kind: internet-search
    cron: "0 3 * * *"
    filters:
      segments: [bakery]
      hasEmail: true
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.True(t, cfg.Verbose)
	require.Equal(t, "leads.example.com", cfg.Upstream.URL.Host)
	require.Equal(t, 25, cfg.Upstream.PageSize)
	require.Equal(t, 15*time.Second, cfg.Upstream.OpenTimeout())

	require.NotNil(t, cfg.Server)
	require.Equal(t, "127.0.0.1:8181", cfg.Server.Addr.ListenAddr())

	require.NotNil(t, cfg.Store)
	require.True(t, cfg.Store.Enabled)
	require.Equal(t, model.DefaultStorePath, cfg.Store.Path)

	require.NotNil(t, cfg.Notify)
	require.True(t, cfg.Notify.Log)
	require.Equal(t, "/var/lib/leadseeker", cfg.Notify.Dir)
	require.NotNil(t, cfg.Notify.Webhook)
	require.Equal(t, "/leads", cfg.Notify.Webhook.URL.Path)

	require.Len(t, cfg.Schedule, 1)
	require.Equal(t, model.KindInternetSearch, cfg.Schedule[0].Kind)
	require.Equal(t, []string{"bakery"}, cfg.Schedule[0].Filters.Segments)
	require.True(t, cfg.Schedule[0].Filters.HasEmail)

	t.Run("kind path", func(t *testing.T) {
		p, err := cfg.KindPath(model.KindRegistryLookup)
		require.NoError(t, err)
		require.Equal(t, "/v2/registry", p)
		p, err = cfg.KindPath(model.KindInternetSearch)
		require.NoError(t, err)
		require.Equal(t, "/api/v1/companies/search", p)
		_, err = cfg.KindPath("weather")
		require.ErrorIs(t, err, model.ErrInvalidKind)
	})
}

func TestLoadConfig_Fail(t *testing.T) {
	var testCases = []struct {
		name    string
		yml     string
		errPath string
	}{
		{
			name: "missing upstream url",
			yml: `
version: 0
upstream:
  page_size: 10
`,
			errPath: "upstream.url",
		},
		{
			name: "unknown kind",
			yml: `
version: 0
upstream:
  url: http://localhost:9000
schedule:
  - name: weekly
    kind: weather-lookup
    duration: P7D
`,
			errPath: "kind",
		},
		{
			name: "page size out of range",
			yml: `
version: 0
upstream:
  url: http://localhost:9000
  page_size: 5000
`,
			errPath: "page_size",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := model.LoadConfig(strings.NewReader(tc.yml))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.errPath)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := model.DefaultConfig(t.Context())
	require.Equal(t, model.DefaultPageSize, cfg.Upstream.PageSize)
	require.Equal(t, 30*time.Second, cfg.Upstream.OpenTimeout())
	require.NotNil(t, cfg.Server)
	require.Equal(t, model.DefaultServerAddr, cfg.Server.Addr.ListenAddr())
	u := cfg.Upstream.URL.JoinPath("/api/v1/companies/search")
	require.Equal(t, "http://localhost:9000/api/v1/companies/search", u.String())
}

func TestCueErrDetails(t *testing.T) {
	yml := `
version: 0
upstream:
  url: http://localhost:9000
schedule:
  - name: weekly
    kind: weather-lookup
    duration: P7D
`
	_, err := model.LoadConfig(strings.NewReader(yml))
	require.Error(t, err)

	details := model.CueErrDetails(err)
	require.NotEmpty(t, details)
	var kind *model.CueErrorDetail
	for _, d := range details {
		if strings.HasSuffix(d.Path, "kind") {
			kind = &d
			break
		}
	}
	require.NotNil(t, kind, "details: %+v", details)
	require.Equal(t, "schedule[0].kind", kind.Path)
	require.Contains(t, kind.Message, "internet-search,registry-lookup")
	require.Equal(t, "config.yaml", kind.Pos.Filename)
	require.Positive(t, kind.Pos.Line)

	require.Nil(t, model.CueErrDetails(nil))
}
