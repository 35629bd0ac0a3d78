package app

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/apicorpus/pkg/constants"
	"github.com/agentstation/apicorpus/pkg/errors"
)

// Config holds the application configuration loaded from config files,
// environment variables and .env files. Flags are applied on top.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Corpus locations
	Registry    string
	OutputDir   string
	Ledger      string
	MetricsFile string

	// Pipeline behavior
	FetchTimeout   time.Duration
	Strict         bool
	ForceRefresh   bool
	UpdateInterval time.Duration

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// envPrefix scopes environment variables, e.g. APICORPUS_REGISTRY.
const envPrefix = "APICORPUS"

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (handled by cobra)
// 2. Environment variables (APICORPUS_*)
// 3. .env files
// 4. Config file (.apicorpus.yaml in the working or home directory)
// 5. Defaults
func LoadConfig() (*Config, error) {
	return loadConfig("")
}

// loadConfig is LoadConfig with an explicit config file, which takes
// precedence over APICORPUS_CONFIG and the search paths.
func loadConfig(configFile string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	v.SetDefault("registry", constants.RegistryFile)
	v.SetDefault("output_dir", constants.OutputDir)
	v.SetDefault("fetch_timeout", constants.FetchTimeout)
	v.SetDefault("update_interval", constants.UpdateInterval)
	v.SetDefault("log_level", "")
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")

	if configFile == "" {
		configFile = v.GetString("config")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigType("yaml")
		v.SetConfigName(".apicorpus")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	// A missing config file is fine; a malformed one is not.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.NewConfigError("config", "reading "+v.ConfigFileUsed(), err)
		}
	}

	return &Config{
		Verbose: v.GetBool("verbose"),
		Quiet:   v.GetBool("quiet"),
		NoColor: v.GetBool("no_color"),
		Format:  v.GetString("format"),

		ConfigFile: v.ConfigFileUsed(),

		Registry:    v.GetString("registry"),
		OutputDir:   v.GetString("output_dir"),
		Ledger:      v.GetString("ledger"),
		MetricsFile: v.GetString("metrics_file"),

		FetchTimeout:   v.GetDuration("fetch_timeout"),
		Strict:         v.GetBool("strict"),
		ForceRefresh:   v.GetBool("force_refresh"),
		UpdateInterval: v.GetDuration("update_interval"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
		LogOutput: v.GetString("log_output"),
	}, nil
}

// loadEnvFiles loads environment variables from .env files. Variables
// already set in the environment win.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}
