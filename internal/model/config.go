package model

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	DefaultUpstreamURL = "http://localhost:9000"
	DefaultPageSize    = 50
	DefaultServerAddr  = ":8080"
	DefaultStorePath   = "leadseeker.db"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx     *cue.Context
	schema     cue.Value
	kindSchema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}

	kindSchema = compiled.LookupPath(cue.ParsePath("#Kind"))
	if kindSchema.Err() != nil {
		panic(kindSchema.Err())
	}
}

type Config struct {
	Version  int        `json:"version" yaml:"version"` // fixed 0 for now
	Verbose  bool       `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	Upstream Upstream   `json:"upstream" yaml:"upstream"`
	Server   *Server    `json:"server,omitempty" yaml:"server,omitempty"`
	Store    *Store     `json:"store,omitempty" yaml:"store,omitempty"`
	Notify   *Notify    `json:"notify,omitempty" yaml:"notify,omitempty"`
	Schedule []Schedule `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// Upstream is the company search provider.
type Upstream struct {
	URL      URL               `json:"url" yaml:"url"`
	PageSize int               `json:"page_size,omitempty" yaml:"page_size,omitempty"`
	Timeout  string            `json:"timeout,omitempty" yaml:"timeout,omitempty"` // connection establishment only
	Token    string            `json:"token,omitempty" yaml:"token,omitempty"`
	Kinds    map[string]string `json:"kinds,omitempty" yaml:"kinds,omitempty"` // kind => request path
}

// OpenTimeout returns the parsed timeout, zero means no limit.
func (u Upstream) OpenTimeout() time.Duration {
	if u.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(u.Timeout)
	if err != nil {
		return 0
	}
	return d
}

type Server struct {
	Addr TCPAddr `json:"addr" yaml:"addr"`
}

// Store configures persistence of finished searches.
type Store struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

type Notify struct {
	Log     bool     `json:"log" yaml:"log"`
	Dir     string   `json:"dir,omitempty" yaml:"dir,omitempty"` // one JSON file per finished search
	Webhook *Webhook `json:"webhook,omitempty" yaml:"webhook,omitempty"`
}

type Webhook struct {
	URL   URL    `json:"url" yaml:"url"`
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
}

// Schedule is a recurring search. Exactly one of Cron or Duration
// (ISO 8601, e.g. PT6H) must be set.
type Schedule struct {
	Name     string        `json:"name" yaml:"name"`
	Kind     SearchKind    `json:"kind" yaml:"kind"`
	Cron     string        `json:"cron,omitempty" yaml:"cron,omitempty"`
	Duration string        `json:"duration,omitempty" yaml:"duration,omitempty"`
	Filters  SearchFilters `json:"filters" yaml:"filters"`
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}

	return out, nil
}

// DefaultConfig is the configuration stored when the user has none.
func DefaultConfig(ctx context.Context) Config {
	u, err := url.Parse(DefaultUpstreamURL)
	if err != nil {
		panic(err)
	}
	var addr TCPAddr
	if err := addr.UnmarshalText([]byte(DefaultServerAddr)); err != nil {
		slog.WarnContext(ctx, "default server address can't be resolved", "addr", DefaultServerAddr, "error", err)
	}
	return Config{
		Version: 0,
		Upstream: Upstream{
			URL:      URL{URL: u},
			PageSize: DefaultPageSize,
			Timeout:  "30s",
		},
		Server: &Server{Addr: addr},
		Store: &Store{
			Enabled: false,
			Path:    DefaultStorePath,
		},
		Notify: &Notify{Log: true},
	}
}

// KindPath returns the upstream request path of a kind.
func (c Config) KindPath(kind SearchKind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if p, ok := c.Upstream.Kinds[string(kind)]; ok {
		return p, nil
	}
	switch kind {
	case KindInternetSearch:
		return "/api/v1/companies/search", nil
	case KindRegistryLookup:
		return "/api/v1/registry/lookup", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
}
