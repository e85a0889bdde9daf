package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/courtcrawl/internal/model"
)

// version is overridden at build time with -ldflags "-X ...cli.version=..."
var version = "v0.1.0"

var (
	cfgFile      string
	verbose      bool
	noCache      bool
	ignoreRobots bool

	appConfig *model.Config
	logger    = zap.NewNop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "courtcrawl",
	Short: "courtcrawl - Davidson County criminal case scraper",
	Long: `courtcrawl harvests criminal case records from the Davidson County
(Nashville) criminal court search portal.

The portal only answers lookups by exact case number, so courtcrawl first
discovers which case numbers exist for a year by bisecting the serial space
of each case category, then looks every case up and writes one JSON record
per defendant.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		appConfig = cfg

		l, err := newLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("courtcrawl " + version)
	},
}

// flagKeys maps persistent flags onto config keys
var flagKeys = map[string]string{
	"verbose":    "output.verbose",
	"log-level":  "log.level",
	"log-format": "log.format",
	"base-url":   "site.base_url",
	"ceiling":    "discovery.ceiling",
	"timeout":    "http.timeout",
	"user-agent": "http.user_agent",
	"insecure":   "http.insecure_tls",
	"rps":        "rate_limiting.requests_per_second",
	"burst":      "rate_limiting.burst_size",
	"workers":    "concurrency.workers",
	"cache-dir":  "cache.dir",
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := model.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.courtcrawl/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	flags.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", defaults.Log.Format, "log format (json, console)")
	flags.String("base-url", defaults.Site.BaseURL, "court portal base URL")
	flags.Int("ceiling", defaults.Discovery.Ceiling, "highest serial searched per category")
	flags.Duration("timeout", defaults.HTTP.Timeout, "per-request HTTP timeout")
	flags.String("user-agent", defaults.HTTP.UserAgent, "HTTP User-Agent")
	flags.Bool("insecure", false, "skip TLS certificate verification")
	flags.Float64("rps", defaults.RateLimiting.RequestsPerSecond, "requests per second to the portal")
	flags.Int("burst", defaults.RateLimiting.BurstSize, "rate limiter burst size")
	flags.Int("workers", defaults.Concurrency.Workers, "concurrent case lookups")
	flags.String("cache-dir", defaults.Cache.Dir, "case page cache directory")
	flags.BoolVar(&noCache, "no-cache", false, "disable the case page cache")
	flags.BoolVar(&ignoreRobots, "ignore-robots", false, "do not consult robots.txt")

	for flag, key := range flagKeys {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".courtcrawl"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// COURTCRAWL_HTTP_TIMEOUT=10s sets http.timeout
	viper.SetEnvPrefix("COURTCRAWL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig assembles the configuration: flags, then env, then the config
// file, then DefaultConfig. The result is validated.
func loadConfig(cmd *cobra.Command) (*model.Config, error) {
	return buildConfig(viper.GetViper(), cmd.Flags().Changed("no-cache") && noCache, cmd.Flags().Changed("ignore-robots") && ignoreRobots)
}

func buildConfig(v *viper.Viper, disableCache, skipRobots bool) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := registerDefaults(v, cfg); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if disableCache {
		cfg.Cache.Enabled = false
	}
	if skipRobots {
		cfg.Site.RespectRobots = false
	}
	if cfg.Output.Verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// registerDefaults makes every config key known to viper so env variables
// resolve for keys absent from the config file.
func registerDefaults(v *viper.Viper, cfg *model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}

	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("unmarshal defaults: %w", err)
	}

	setDefaults(v, "", tree)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// newLogger builds the zap logger described by cfg. Logs go to stderr so
// stdout stays clean for records.
func newLogger(cfg model.LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	zcfg.Sampling = nil
	if cfg.Format == "console" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	return zcfg.Build()
}
