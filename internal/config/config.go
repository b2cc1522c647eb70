package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ggonzalez94/defi-adapters/internal/registry"
)

const (
	ModeWallet   = "wallet"
	ModeProposal = "proposal"
	ModeDryRun   = "dry-run"
)

const (
	OutputJSON  = "json"
	OutputPlain = "plain"
)

type GlobalFlags struct {
	ConfigPath      string
	EnvFile         string
	JSON            bool
	Plain           bool
	Select          string
	ResultsOnly     bool
	EnableFunctions string
	Timeout         string
	Mode            string
	KeySource       string
	LogLevel        string
	LogFormat       string
}

type Settings struct {
	OutputMode      string
	SelectFields    []string
	ResultsOnly     bool
	EnableFunctions []string
	Timeout         time.Duration
	RPCURLs         map[int64]string

	SubmissionMode   string
	ProposalPath     string
	ProposalLockPath string
	KeySource        string

	EnsoAPIKey string
	// Endpoints overrides off-chain service URLs, keyed by registry service name.
	Endpoints map[string]string

	ListenAddr   string
	JWTSecret    string
	RateLimit    float64
	RateBurst    int
	OTLPEndpoint string

	LogLevel  string
	LogFormat string
}

type fileConfig struct {
	Output          string           `yaml:"output"`
	Timeout         string           `yaml:"timeout"`
	EnableFunctions []string         `yaml:"enable_functions"`
	RPC             map[int64]string `yaml:"rpc"`
	Submission      struct {
		Mode         string `yaml:"mode"`
		KeySource    string `yaml:"key_source"`
		ProposalPath string `yaml:"proposals_path"`
		ProposalLock string `yaml:"proposals_lock_path"`
	} `yaml:"submission"`
	Endpoints map[string]string `yaml:"endpoints"`
	Enso      struct {
		APIKey    string `yaml:"api_key"`
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"enso"`
	Server struct {
		Listen       string   `yaml:"listen"`
		JWTSecret    string   `yaml:"jwt_secret"`
		JWTSecretEnv string   `yaml:"jwt_secret_env"`
		RateLimit    *float64 `yaml:"rate_limit"`
		RateBurst    *int     `yaml:"rate_burst"`
	} `yaml:"server"`
	Telemetry struct {
		OTLPEndpoint string `yaml:"otlp_endpoint"`
		LogLevel     string `yaml:"log_level"`
		LogFormat    string `yaml:"log_format"`
	} `yaml:"telemetry"`
}

// Load resolves settings with precedence flags > env > file > defaults. The .env file
// is read first so its values take part in env resolution without overriding real env.
func Load(flags GlobalFlags) (Settings, error) {
	if err := loadDotEnv(flags.EnvFile); err != nil {
		return Settings{}, err
	}

	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if err := validateEndpoints(settings.Endpoints); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 15 * time.Second
	}
	if settings.RateBurst <= 0 {
		settings.RateBurst = 1
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	dir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:       OutputJSON,
		Timeout:          15 * time.Second,
		RPCURLs:          map[int64]string{},
		Endpoints:        map[string]string{},
		SubmissionMode:   ModeDryRun,
		ProposalPath:     filepath.Join(dir, "proposals.db"),
		ProposalLockPath: filepath.Join(dir, "proposals.lock"),
		KeySource:        "auto",
		ListenAddr:       "127.0.0.1:8088",
		RateLimit:        5,
		RateBurst:        10,
		LogLevel:         "info",
		LogFormat:        "text",
	}, nil
}

func loadDotEnv(path string) error {
	if strings.TrimSpace(path) != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	if v := os.Getenv("ADAPTERS_CONFIG"); v != "" {
		return v, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "defi-adapters", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "defi-adapters"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if len(cfg.EnableFunctions) > 0 {
		settings.EnableFunctions = cleanList(cfg.EnableFunctions)
	}
	for chainID, url := range cfg.RPC {
		if strings.TrimSpace(url) != "" {
			settings.RPCURLs[chainID] = strings.TrimSpace(url)
		}
	}
	if cfg.Submission.Mode != "" {
		settings.SubmissionMode = strings.ToLower(cfg.Submission.Mode)
	}
	if cfg.Submission.KeySource != "" {
		settings.KeySource = cfg.Submission.KeySource
	}
	if cfg.Submission.ProposalPath != "" {
		settings.ProposalPath = cfg.Submission.ProposalPath
	}
	if cfg.Submission.ProposalLock != "" {
		settings.ProposalLockPath = cfg.Submission.ProposalLock
	}
	for service, endpoint := range cfg.Endpoints {
		if strings.TrimSpace(endpoint) != "" {
			settings.Endpoints[strings.ToLower(strings.TrimSpace(service))] = strings.TrimSpace(endpoint)
		}
	}
	if cfg.Enso.APIKey != "" {
		settings.EnsoAPIKey = cfg.Enso.APIKey
	}
	if cfg.Enso.APIKeyEnv != "" {
		settings.EnsoAPIKey = os.Getenv(cfg.Enso.APIKeyEnv)
	}
	if cfg.Server.Listen != "" {
		settings.ListenAddr = cfg.Server.Listen
	}
	if cfg.Server.JWTSecret != "" {
		settings.JWTSecret = cfg.Server.JWTSecret
	}
	if cfg.Server.JWTSecretEnv != "" {
		settings.JWTSecret = os.Getenv(cfg.Server.JWTSecretEnv)
	}
	if cfg.Server.RateLimit != nil {
		settings.RateLimit = *cfg.Server.RateLimit
	}
	if cfg.Server.RateBurst != nil {
		settings.RateBurst = *cfg.Server.RateBurst
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		settings.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	if cfg.Telemetry.LogLevel != "" {
		settings.LogLevel = cfg.Telemetry.LogLevel
	}
	if cfg.Telemetry.LogFormat != "" {
		settings.LogFormat = cfg.Telemetry.LogFormat
	}
	return nil
}

const rpcEnvPrefix = "ADAPTERS_RPC_"

var endpointEnv = map[string]string{
	registry.ServiceEnso:     "ADAPTERS_ENSO_URL",
	registry.ServiceMorpho:   "ADAPTERS_MORPHO_URL",
	registry.ServiceBetSwirl: "ADAPTERS_BETSWIRL_URL",
}

// validateEndpoints only lets overrides point at the service's own host or at loopback.
func validateEndpoints(endpoints map[string]string) error {
	for service, endpoint := range endpoints {
		if _, ok := registry.ServiceBaseURL(service); !ok {
			return fmt.Errorf("unknown endpoint service %q", service)
		}
		if !registry.IsAllowedEndpointOverride(service, endpoint) {
			return fmt.Errorf("endpoint override for %s must use https on the canonical host or a loopback address: %s", service, endpoint)
		}
	}
	return nil
}

func applyEnv(settings *Settings) error {
	for service, key := range endpointEnv {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			settings.Endpoints[service] = v
		}
	}
	if v := os.Getenv("ADAPTERS_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("ADAPTERS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("ADAPTERS_ENABLE_FUNCTIONS"); v != "" {
		settings.EnableFunctions = splitList(v)
	}
	if v := os.Getenv("ADAPTERS_MODE"); v != "" {
		settings.SubmissionMode = strings.ToLower(v)
	}
	if v := os.Getenv("ADAPTERS_KEY_SOURCE"); v != "" {
		settings.KeySource = v
	}
	if v := os.Getenv("ADAPTERS_PROPOSALS_PATH"); v != "" {
		settings.ProposalPath = v
	}
	if v := os.Getenv("ADAPTERS_PROPOSALS_LOCK_PATH"); v != "" {
		settings.ProposalLockPath = v
	}
	if v := os.Getenv("ADAPTERS_ENSO_API_KEY"); v != "" {
		settings.EnsoAPIKey = v
	}
	if v := os.Getenv("ADAPTERS_LISTEN"); v != "" {
		settings.ListenAddr = v
	}
	if v := os.Getenv("ADAPTERS_JWT_SECRET"); v != "" {
		settings.JWTSecret = v
	}
	if v := os.Getenv("ADAPTERS_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			settings.RateLimit = f
		}
	}
	if v := os.Getenv("ADAPTERS_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.RateBurst = n
		}
	}
	if v := os.Getenv("ADAPTERS_OTLP_ENDPOINT"); v != "" {
		settings.OTLPEndpoint = v
	}
	if v := os.Getenv("ADAPTERS_LOG_LEVEL"); v != "" {
		settings.LogLevel = v
	}
	if v := os.Getenv("ADAPTERS_LOG_FORMAT"); v != "" {
		settings.LogFormat = v
	}

	// ADAPTERS_RPC_<chainId>=https://...
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, rpcEnvPrefix) || strings.TrimSpace(value) == "" {
			continue
		}
		chainID, err := strconv.ParseInt(strings.TrimPrefix(key, rpcEnvPrefix), 10, 64)
		if err != nil {
			return fmt.Errorf("parse %s: chain id must be numeric", key)
		}
		settings.RPCURLs[chainID] = strings.TrimSpace(value)
	}
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = OutputJSON
	}
	if flags.Plain {
		settings.OutputMode = OutputPlain
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = settings.ResultsOnly || flags.ResultsOnly

	if strings.TrimSpace(flags.EnableFunctions) != "" {
		settings.EnableFunctions = splitList(flags.EnableFunctions)
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Mode != "" {
		settings.SubmissionMode = strings.ToLower(strings.TrimSpace(flags.Mode))
	}
	if flags.KeySource != "" {
		settings.KeySource = flags.KeySource
	}
	if flags.LogLevel != "" {
		settings.LogLevel = flags.LogLevel
	}
	if flags.LogFormat != "" {
		settings.LogFormat = flags.LogFormat
	}

	if settings.OutputMode != OutputJSON && settings.OutputMode != OutputPlain {
		return fmt.Errorf("output must be json or plain")
	}
	switch settings.SubmissionMode {
	case ModeWallet, ModeProposal, ModeDryRun:
	default:
		return fmt.Errorf("mode must be one of %s|%s|%s", ModeWallet, ModeProposal, ModeDryRun)
	}
	return nil
}

func splitList(v string) []string {
	return cleanList(strings.Split(v, ","))
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, part := range in {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
