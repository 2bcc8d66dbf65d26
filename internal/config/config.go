package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/walletbot/internal/errors"
	"github.com/ggonzalez94/walletbot/internal/id"
	"github.com/ggonzalez94/walletbot/internal/registry"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	SessionBackendMemory = "memory"
	SessionBackendSQLite = "sqlite"
	SessionBackendRedis  = "redis"
)

var encryptionKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

type GlobalFlags struct {
	ConfigPath     string
	EnvFile        string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	LogLevel       string
	LogFormat      string
	SessionBackend string
	MetricsListen  string
	TransferChain  string
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	Timeout        time.Duration
	LogLevel       string
	LogFormat      string

	TelegramToken string
	EncryptionKey string
	AllowedUsers  []int64

	RPCURLs       map[string]string
	TransferChain string

	SessionBackend  string
	SessionPath     string
	SessionLockPath string
	SessionTTL      time.Duration
	RedisAddress    string
	RedisPassword   string
	RedisDB         int
	RedisPrefix     string

	ActionStorePath    string
	ActionLockPath     string
	ConfirmTimeout     time.Duration
	PollInterval       time.Duration
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	SlippageBps        int64
	RouteOverrides     registry.RouteOverrides

	MetricsListen string
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Log     struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Telegram struct {
		Token        string  `yaml:"token"`
		TokenEnv     string  `yaml:"token_env"`
		AllowedUsers []int64 `yaml:"allowed_users"`
	} `yaml:"telegram"`
	Vault struct {
		EncryptionKeyEnv string `yaml:"encryption_key_env"`
	} `yaml:"vault"`
	Chains struct {
		RPC           map[string]string `yaml:"rpc"`
		TransferChain string            `yaml:"transfer_chain"`
	} `yaml:"chains"`
	Session struct {
		Backend  string `yaml:"backend"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		TTL      string `yaml:"ttl"`
		Redis    struct {
			Address     string `yaml:"address"`
			PasswordEnv string `yaml:"password_env"`
			DB          *int   `yaml:"db"`
			Prefix      string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"session"`
	Execution struct {
		ActionsPath        string   `yaml:"actions_path"`
		ActionsLockPath    string   `yaml:"actions_lock_path"`
		ConfirmTimeout     string   `yaml:"confirm_timeout"`
		PollInterval       string   `yaml:"poll_interval"`
		GasMultiplier      *float64 `yaml:"gas_multiplier"`
		MaxFeeGwei         string   `yaml:"max_fee_gwei"`
		MaxPriorityFeeGwei string   `yaml:"max_priority_fee_gwei"`
	} `yaml:"execution"`
	Migration struct {
		SlippageBps  *int64 `yaml:"slippage_bps"`
		Aggregator   string `yaml:"aggregator"`
		BridgeRouter string `yaml:"bridge_router"`
		SourcePool   string `yaml:"source_pool"`
		DestPool     string `yaml:"dest_pool"`
		DestReceiver string `yaml:"dest_receiver"`
	} `yaml:"migration"`
	Metrics struct {
		Listen string `yaml:"listen"`
	} `yaml:"metrics"`
}

// Load resolves settings from defaults, the YAML file, a .env file, the
// environment and finally flags, each layer overriding the previous one.
func Load(flags GlobalFlags) (Settings, error) {
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

	if err := loadEnvFile(flags.EnvFile); err != nil {
		return Settings{}, err
	}
	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.ConfirmTimeout <= 0 {
		settings.ConfirmTimeout = 3 * time.Minute
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 2 * time.Second
	}
	if settings.SessionTTL < 0 {
		settings.SessionTTL = 0
	}

	return settings, nil
}

// ValidateServe checks what the bot needs before it may start.
func (s Settings) ValidateServe() error {
	if strings.TrimSpace(s.TelegramToken) == "" {
		return clierr.New(clierr.CodeConfig, "TELEGRAM_BOT_TOKEN is not set")
	}
	if !encryptionKeyPattern.MatchString(s.EncryptionKey) {
		return clierr.New(clierr.CodeConfig, "ENCRYPTION_KEY must be set and be a 64-character hexadecimal string")
	}
	switch s.SessionBackend {
	case SessionBackendMemory, SessionBackendSQLite:
	case SessionBackendRedis:
		if strings.TrimSpace(s.RedisAddress) == "" {
			return clierr.New(clierr.CodeConfig, "redis session backend requires session.redis.address")
		}
	default:
		return clierr.New(clierr.CodeConfig, fmt.Sprintf("unknown session backend %q", s.SessionBackend))
	}
	if _, err := id.ParseChain(s.TransferChain); err != nil {
		return clierr.Wrap(clierr.CodeConfig, "transfer chain", err)
	}
	return nil
}

func defaultSettings() (Settings, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:      "json",
		Timeout:         10 * time.Second,
		LogLevel:        "info",
		LogFormat:       "console",
		RPCURLs:         map[string]string{},
		TransferChain:   "polygon",
		SessionBackend:  SessionBackendMemory,
		SessionPath:     filepath.Join(dataDir, "sessions.db"),
		SessionLockPath: filepath.Join(dataDir, "sessions.lock"),
		RedisPrefix:     "walletbot:",
		ActionStorePath: filepath.Join(dataDir, "actions.db"),
		ActionLockPath:  filepath.Join(dataDir, "actions.lock"),
		ConfirmTimeout:  3 * time.Minute,
		PollInterval:    2 * time.Second,
		GasMultiplier:   1.2,
		SlippageBps:     50,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "walletbot", "config.yaml"), nil
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
	return filepath.Join(base, "walletbot"), nil
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
	if cfg.Log.Level != "" {
		settings.LogLevel = strings.ToLower(cfg.Log.Level)
	}
	if cfg.Log.Format != "" {
		settings.LogFormat = strings.ToLower(cfg.Log.Format)
	}
	if cfg.Telegram.Token != "" {
		settings.TelegramToken = cfg.Telegram.Token
	}
	if cfg.Telegram.TokenEnv != "" {
		settings.TelegramToken = os.Getenv(cfg.Telegram.TokenEnv)
	}
	if len(cfg.Telegram.AllowedUsers) > 0 {
		settings.AllowedUsers = append([]int64(nil), cfg.Telegram.AllowedUsers...)
	}
	if cfg.Vault.EncryptionKeyEnv != "" {
		settings.EncryptionKey = os.Getenv(cfg.Vault.EncryptionKeyEnv)
	}
	for chain, url := range cfg.Chains.RPC {
		if strings.TrimSpace(url) != "" {
			settings.RPCURLs[strings.ToLower(chain)] = url
		}
	}
	if cfg.Chains.TransferChain != "" {
		settings.TransferChain = strings.ToLower(cfg.Chains.TransferChain)
	}
	if cfg.Session.Backend != "" {
		settings.SessionBackend = strings.ToLower(cfg.Session.Backend)
	}
	if cfg.Session.Path != "" {
		settings.SessionPath = cfg.Session.Path
	}
	if cfg.Session.LockPath != "" {
		settings.SessionLockPath = cfg.Session.LockPath
	}
	if cfg.Session.TTL != "" {
		d, err := time.ParseDuration(cfg.Session.TTL)
		if err != nil {
			return fmt.Errorf("config session.ttl: %w", err)
		}
		settings.SessionTTL = d
	}
	if cfg.Session.Redis.Address != "" {
		settings.RedisAddress = cfg.Session.Redis.Address
	}
	if cfg.Session.Redis.PasswordEnv != "" {
		settings.RedisPassword = os.Getenv(cfg.Session.Redis.PasswordEnv)
	}
	if cfg.Session.Redis.DB != nil {
		settings.RedisDB = *cfg.Session.Redis.DB
	}
	if cfg.Session.Redis.Prefix != "" {
		settings.RedisPrefix = cfg.Session.Redis.Prefix
	}
	if cfg.Execution.ActionsPath != "" {
		settings.ActionStorePath = cfg.Execution.ActionsPath
	}
	if cfg.Execution.ActionsLockPath != "" {
		settings.ActionLockPath = cfg.Execution.ActionsLockPath
	}
	if cfg.Execution.ConfirmTimeout != "" {
		d, err := time.ParseDuration(cfg.Execution.ConfirmTimeout)
		if err != nil {
			return fmt.Errorf("config execution.confirm_timeout: %w", err)
		}
		settings.ConfirmTimeout = d
	}
	if cfg.Execution.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Execution.PollInterval)
		if err != nil {
			return fmt.Errorf("config execution.poll_interval: %w", err)
		}
		settings.PollInterval = d
	}
	if cfg.Execution.GasMultiplier != nil {
		settings.GasMultiplier = *cfg.Execution.GasMultiplier
	}
	if cfg.Execution.MaxFeeGwei != "" {
		settings.MaxFeeGwei = cfg.Execution.MaxFeeGwei
	}
	if cfg.Execution.MaxPriorityFeeGwei != "" {
		settings.MaxPriorityFeeGwei = cfg.Execution.MaxPriorityFeeGwei
	}
	if cfg.Migration.SlippageBps != nil {
		settings.SlippageBps = *cfg.Migration.SlippageBps
	}
	settings.RouteOverrides = registry.RouteOverrides{
		Aggregator:   cfg.Migration.Aggregator,
		BridgeRouter: cfg.Migration.BridgeRouter,
		SourcePool:   cfg.Migration.SourcePool,
		DestPool:     cfg.Migration.DestPool,
		DestReceiver: cfg.Migration.DestReceiver,
	}
	if cfg.Metrics.Listen != "" {
		settings.MetricsListen = cfg.Metrics.Listen
	}

	return nil
}

// loadEnvFile reads KEY=value pairs into the process environment without
// overriding variables that are already set. A missing default file is fine.
func loadEnvFile(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("parse env file: %w", err)
	}
	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("WALLETBOT_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("WALLETBOT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("WALLETBOT_LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("WALLETBOT_LOG_FORMAT"); v != "" {
		settings.LogFormat = strings.ToLower(v)
	}
	if v := firstEnv("WALLETBOT_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN"); v != "" {
		settings.TelegramToken = v
	}
	if v := firstEnv("WALLETBOT_ENCRYPTION_KEY", "ENCRYPTION_KEY"); v != "" {
		settings.EncryptionKey = v
	}
	if v := os.Getenv("WALLETBOT_ALLOWED_USERS"); v != "" {
		if ids, err := parseUserIDs(v); err == nil {
			settings.AllowedUsers = ids
		}
	}
	for _, c := range id.Chains() {
		if v := os.Getenv("WALLETBOT_RPC_" + strings.ToUpper(c.Slug)); v != "" {
			settings.RPCURLs[c.Slug] = v
		}
	}
	if v := os.Getenv("WALLETBOT_TRANSFER_CHAIN"); v != "" {
		settings.TransferChain = strings.ToLower(v)
	}
	if v := os.Getenv("WALLETBOT_SESSION_BACKEND"); v != "" {
		settings.SessionBackend = strings.ToLower(v)
	}
	if v := os.Getenv("WALLETBOT_SESSION_PATH"); v != "" {
		settings.SessionPath = v
	}
	if v := os.Getenv("WALLETBOT_SESSION_LOCK_PATH"); v != "" {
		settings.SessionLockPath = v
	}
	if v := os.Getenv("WALLETBOT_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.SessionTTL = d
		}
	}
	if v := os.Getenv("WALLETBOT_REDIS_ADDRESS"); v != "" {
		settings.RedisAddress = v
	}
	if v := os.Getenv("WALLETBOT_REDIS_PASSWORD"); v != "" {
		settings.RedisPassword = v
	}
	if v := os.Getenv("WALLETBOT_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.RedisDB = n
		}
	}
	if v := os.Getenv("WALLETBOT_ACTIONS_PATH"); v != "" {
		settings.ActionStorePath = v
	}
	if v := os.Getenv("WALLETBOT_ACTIONS_LOCK_PATH"); v != "" {
		settings.ActionLockPath = v
	}
	if v := os.Getenv("WALLETBOT_CONFIRM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.ConfirmTimeout = d
		}
	}
	if v := os.Getenv("WALLETBOT_MAX_FEE_GWEI"); v != "" {
		settings.MaxFeeGwei = v
	}
	if v := os.Getenv("WALLETBOT_MAX_PRIORITY_FEE_GWEI"); v != "" {
		settings.MaxPriorityFeeGwei = v
	}
	if v := os.Getenv("WALLETBOT_SLIPPAGE_BPS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.SlippageBps = n
		}
	}
	if v := os.Getenv("WALLETBOT_METRICS_LISTEN"); v != "" {
		settings.MetricsListen = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if fields := splitList(flags.Select); len(fields) > 0 {
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly
	if allowed := splitList(flags.EnableCommands); len(allowed) > 0 {
		settings.EnableCommands = allowed
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.LogLevel != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}
	if flags.LogFormat != "" {
		settings.LogFormat = strings.ToLower(flags.LogFormat)
	}
	if flags.SessionBackend != "" {
		settings.SessionBackend = strings.ToLower(flags.SessionBackend)
	}
	if flags.MetricsListen != "" {
		settings.MetricsListen = flags.MetricsListen
	}
	if flags.TransferChain != "" {
		settings.TransferChain = strings.ToLower(flags.TransferChain)
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	if settings.LogFormat != "json" && settings.LogFormat != "console" {
		return fmt.Errorf("log format must be json or console")
	}

	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseUserIDs(raw string) ([]int64, error) {
	parts := splitList(raw)
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse user id %q: %w", p, err)
		}
		ids = append(ids, n)
	}
	return ids, nil
}
