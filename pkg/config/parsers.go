package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
)

const envPrefix = "GROUPCHAT_"

// holds parsed command-line flag values and which were set
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// holds the result of LoadEffectiveConfig
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", or "env"
}

// parses command-line flags; only three values are accepted on the command line
func ParseConfigFlags(args []string) (Flags, error) {
	fset := flag.NewFlagSet("groupchat", flag.ContinueOnError)
	addrPtr := fset.String("addr", ":8080", "HTTP listen address")
	dbPtr := fset.String("db", "./.database", "Pebble DB path")
	cfgPtr := fset.String("config", "./config.yaml", "Path to config file")
	if err := fset.Parse(args); err != nil {
		return Flags{}, err
	}

	setFlags := make(map[string]bool)
	fset.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}, nil
}

// loads config from file, returns config, found bool, and error
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// ParseConfigEnvs reads GROUPCHAT_* variables from the process environment.
func ParseConfigEnvs() (*Config, bool) {
	return ParseConfigEnvsFrom(os.Getenv)
}

// ParseConfigEnvsFrom loads environment overrides into a fresh Config and
// reports whether any variable was set.
func ParseConfigEnvsFrom(getenv func(string) string) (*Config, bool) {
	names := []string{
		"SERVER_ADDRESS", "SERVER_PORT", "DB_PATH", "MAX_BODY_SIZE",
		"CORS_ORIGINS", "RATE_RPS", "RATE_BURST", "IP_WHITELIST",
		"API_BACKEND_KEYS", "API_FRONTEND_KEYS", "API_ADMIN_KEYS",
		"LOG_LEVEL",
		"CHAT_MAX_CONTENT_RUNES", "CHAT_HISTORY_PAGE_SIZE", "CHAT_PRESENCE_TTL",
		"CHAT_SUBSCRIBER_BUFFER", "CHAT_WRITE_TIMEOUT", "CHAT_PING_INTERVAL",
		"SWEEPER_ENABLED", "SWEEPER_CRON",
		"TELEMETRY_SAMPLE_RATE", "TELEMETRY_SLOW_THRESHOLD",
	}
	envs := make(map[string]string, len(names))
	envUsed := false
	for _, n := range names {
		v := strings.TrimSpace(getenv(envPrefix + n))
		envs[n] = v
		if v != "" {
			envUsed = true
		}
	}

	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}
	parseBool := func(v string) bool {
		switch strings.ToLower(v) {
		case "1", "true", "yes":
			return true
		default:
			return false
		}
	}
	parseInt := func(v string) int {
		i, _ := strconv.Atoi(v)
		return i
	}

	c := &Config{}
	c.Server.Address = envs["SERVER_ADDRESS"]
	c.Server.Port = parseInt(envs["SERVER_PORT"])
	c.Server.DBPath = envs["DB_PATH"]
	if sz, err := ParseSizeBytes(envs["MAX_BODY_SIZE"]); err == nil {
		c.Server.MaxBodySize = sz
	}
	c.Server.CORS.AllowedOrigins = parseList(envs["CORS_ORIGINS"])
	if f, err := strconv.ParseFloat(envs["RATE_RPS"], 64); err == nil {
		c.Server.RateLimit.RPS = f
	}
	c.Server.RateLimit.Burst = parseInt(envs["RATE_BURST"])
	c.Server.IPWhitelist = parseList(envs["IP_WHITELIST"])
	c.Server.APIKeys.Backend = parseList(envs["API_BACKEND_KEYS"])
	c.Server.APIKeys.Frontend = parseList(envs["API_FRONTEND_KEYS"])
	c.Server.APIKeys.Admin = parseList(envs["API_ADMIN_KEYS"])

	c.Logging.Level = envs["LOG_LEVEL"]

	c.Chat.MaxContentRunes = parseInt(envs["CHAT_MAX_CONTENT_RUNES"])
	c.Chat.HistoryPageSize = parseInt(envs["CHAT_HISTORY_PAGE_SIZE"])
	c.Chat.SubscriberBuffer = parseInt(envs["CHAT_SUBSCRIBER_BUFFER"])
	if d, err := ParseDuration(envs["CHAT_PRESENCE_TTL"]); err == nil {
		c.Chat.PresenceTTL = d
	}
	if d, err := ParseDuration(envs["CHAT_WRITE_TIMEOUT"]); err == nil {
		c.Chat.WriteTimeout = d
	}
	if d, err := ParseDuration(envs["CHAT_PING_INTERVAL"]); err == nil {
		c.Chat.PingInterval = d
	}

	c.Sweeper.Enabled = parseBool(envs["SWEEPER_ENABLED"])
	c.Sweeper.Cron = envs["SWEEPER_CRON"]

	if f, err := strconv.ParseFloat(envs["TELEMETRY_SAMPLE_RATE"], 64); err == nil {
		c.Telemetry.SampleRate = f
	}
	if d, err := ParseDuration(envs["TELEMETRY_SLOW_THRESHOLD"]); err == nil {
		c.Telemetry.SlowThreshold = d
	}
	return c, envUsed
}

// decides which single source to use (flags, config file, or env). if
// --config is set only the file is used; otherwise flags if set; else the
// config file if present; else env
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	if flags.Set["config"] {
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		res.Config = fileCfg
		res.Source = "config"
	} else if flags.Set["addr"] || flags.Set["db"] {
		out := envCfg
		if fileExists {
			out = fileCfg
		}
		if flags.Set["addr"] {
			host, port := splitAddr(flags.Addr)
			out.Server.Address = host
			out.Server.Port = port
		}
		if flags.Set["db"] {
			out.Server.DBPath = flags.DB
		}
		res.Config = out
		res.Source = "flags"
	} else if fileExists {
		res.Config = fileCfg
		res.Source = "config"
	} else {
		res.Config = envCfg
		res.Source = "env"
	}

	if res.Config.Server.DBPath == "" {
		res.Config.Server.DBPath = flags.DB
	}
	if err := res.Config.ApplyDefaults(); err != nil {
		return res, err
	}
	res.Addr = res.Config.Addr()
	res.DBPath = res.Config.Server.DBPath
	return res, nil
}

// ValidateConfig fails fast on settings the server cannot start with.
func ValidateConfig(eff EffectiveConfigResult) error {
	if eff.Config == nil {
		return fmt.Errorf("effective config is nil")
	}
	if strings.TrimSpace(eff.DBPath) == "" {
		return fmt.Errorf("database path is empty: set --db flag, GROUPCHAT_DB_PATH env, or server.db_path in config")
	}
	if len(eff.Config.Server.APIKeys.Backend) == 0 {
		return fmt.Errorf("no backend api keys configured: user signatures cannot be issued")
	}
	return nil
}

func splitAddr(a string) (string, int) {
	host, p, err := net.SplitHostPort(a)
	if err != nil {
		return a, 0
	}
	port, _ := strconv.Atoi(p)
	return host, port
}
