package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/CZERTAINLY/leadseeker/internal/log"
	"github.com/CZERTAINLY/leadseeker/internal/model"
	"github.com/CZERTAINLY/leadseeker/internal/service"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	userConfigPath string // /default/config/path/leadseeker on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string // value of --config flag
	flagKind           string
	flagFilters        model.SearchFilters

	overrides = viper.New()
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "leadseeker")
}

func main() {
	// root flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is leadseeker.yaml in "+userConfigPath+" or in current directory")
	flags.Bool("verbose", false, "verbose logging")
	flags.String("upstream-url", "", "base URL of the company search provider")
	mustBind("verbose", flags.Lookup("verbose"))
	mustBind("upstream.url", flags.Lookup("upstream-url"))

	serveCmd.Flags().String("addr", "", "listen address of the HTTP API, e.g. :8080")
	mustBind("server.addr", serveCmd.Flags().Lookup("addr"))

	sf := searchCmd.Flags()
	sf.StringVar(&flagKind, "kind", string(model.KindInternetSearch), "search kind: internet-search or registry-lookup")
	sf.StringSliceVar(&flagFilters.Segments, "segment", nil, "business segment, repeatable")
	sf.StringSliceVar(&flagFilters.Regions, "region", nil, "region, repeatable")
	sf.StringSliceVar(&flagFilters.Localities, "locality", nil, "locality, repeatable")
	sf.StringSliceVar(&flagFilters.SizeClasses, "size-class", nil, "company size class, repeatable")
	sf.BoolVar(&flagFilters.HasEmail, "has-email", false, "only companies with an email")
	sf.BoolVar(&flagFilters.HasPhone, "has-phone", false, "only companies with a phone")
	sf.BoolVar(&flagFilters.HasWebsite, "has-website", false, "only companies with a website")
	sf.BoolVar(&flagFilters.HasSocial, "has-social", false, "only companies with a social profile")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initLeadseeker

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("leadseeker failed", "err", err)
		os.Exit(1)
	}
}

func mustBind(key string, flag *pflag.Flag) {
	if err := overrides.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

var rootCmd = &cobra.Command{
	Use:          "leadseeker",
	Short:        "Runs company searches against a streaming provider",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve runs the HTTP API and the scheduled searches",
	RunE:  doServe,
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "search runs one search, prints progress to stderr and results to stdout",
	Args:  cobra.NoArgs,
	RunE:  doSearch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a leadseeker",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("leadseeker: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:     %s\n", configPath)
		}
		fmt.Printf("leadseeker: %s\n", info.Main.Version)
		fmt.Printf("go:         %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:     %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:       %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:      %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func doServe(cmd *cobra.Command, args []string) error {
	ctx := log.ContextAttrs(cmd.Context(), slog.Group("leadseeker",
		slog.String("cmd", "serve"),
		slog.Int("pid", os.Getpid()),
	))
	return service.Serve(ctx, config)
}

func doSearch(cmd *cobra.Command, args []string) error {
	ctx := log.ContextAttrs(cmd.Context(), slog.Group("leadseeker",
		slog.String("cmd", "search"),
		slog.Int("pid", os.Getpid()),
	))
	return service.Search(ctx, config, model.SearchKind(flagKind), flagFilters, os.Stdout, os.Stderr)
}

func initLeadseeker(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("LEADSEEKERCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "leadseeker.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	// store default configuration
	if configPath == "" {
		config = model.DefaultConfig(cmd.Context())
		configPath = filepath.Join(userConfigPath, "leadseeker.yaml")
		if err := storeConfig(configPath, config); err != nil {
			return err
		}
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		config, err = model.LoadConfig(f)
		if err != nil {
			for _, d := range model.CueErrDetails(err) {
				slog.Error("invalid config", d.Attr("detail"))
			}
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	// flags and LEADSEEKER_* variables have a precedence over config file
	if err := service.BindEnv(overrides); err != nil {
		return err
	}
	o, err := service.ParseOverrides(overrides)
	if err != nil {
		return fmt.Errorf("parsing overrides: %w", err)
	}
	if err := o.Apply(&config); err != nil {
		return err
	}

	slog.SetDefault(log.New(os.Stderr, config.Verbose))

	slog.Debug("leadseeker run", "configPath", configPath)
	slog.Debug("leadseeker run", "upstream", config.Upstream.URL.String(), "schedules", len(config.Schedule))
	return nil
}

func storeConfig(path string, cfg model.Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("storing configuration: %w", err)
	}
	return enc.Close()
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
