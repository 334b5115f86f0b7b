// Package config provides Viper-based configuration loading for the dicecrawl server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/cory-johannsen/dicecrawl/internal/game/dice"
)

// DatabaseConfig holds PostgreSQL connection settings for the combat journal.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// TelnetConfig holds Telnet acceptor settings.
type TelnetConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// IdleTimeout is how long a player may be silent before being warned;
	// zero disables the idle monitor.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// IdleGrace is the time between the idle warning and the disconnect.
	IdleGrace time.Duration `mapstructure:"idle_grace"`
}

// Addr returns the "host:port" listen address.
func (t TelnetConfig) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// CombatConfig holds the tunable rules of the resolution engine.
type CombatConfig struct {
	// PartySize is the number of hero-side targets an enemy may pick from.
	PartySize int `mapstructure:"party_size"`
	// FleeDC is the d20 total that must be exceeded to escape.
	FleeDC int `mapstructure:"flee_dc"`
	// ChestGoldExpr is the dice expression rolled when a chest is opened.
	ChestGoldExpr string `mapstructure:"chest_gold_expr"`
	// PotionHealExpr is rolled for items whose name contains "potion".
	PotionHealExpr string `mapstructure:"potion_heal_expr"`
	// ItemHeal is the flat heal for every other consumable.
	ItemHeal int `mapstructure:"item_heal"`
}

// RevealConfig holds the dwell time of each reveal phase.
type RevealConfig struct {
	Rolling     time.Duration `mapstructure:"rolling"`
	Stagger     time.Duration `mapstructure:"stagger"`
	RevealHold  time.Duration `mapstructure:"reveal_hold"`
	CritBuildup time.Duration `mapstructure:"crit_buildup"`
	Clash       time.Duration `mapstructure:"clash"`
	Impact      time.Duration `mapstructure:"impact"`
	// Tick is the driver polling interval.
	Tick time.Duration `mapstructure:"tick"`
}

// ContentConfig points at the data files loaded at startup.
type ContentConfig struct {
	EnemiesFile     string `mapstructure:"enemies_file"`
	SpawnFile       string `mapstructure:"spawn_file"`
	NarrativeScript string `mapstructure:"narrative_script"`
}

// NarrativeConfig selects the primary narrator.
type NarrativeConfig struct {
	// Mode is one of "template", "lua", "anthropic".
	Mode      string        `mapstructure:"mode"`
	Model     string        `mapstructure:"model"`
	MaxTokens int64         `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
	APIKey    string        `mapstructure:"api_key"`
	// InstructionLimit bounds each Lua narrate call.
	InstructionLimit int `mapstructure:"instruction_limit"`
}

// SyncConfig selects how snapshots are replicated to peers.
type SyncConfig struct {
	// Mode is one of "none", "redis", "grpc".
	Mode         string `mapstructure:"mode"`
	RedisAddr    string `mapstructure:"redis_addr"`
	RedisChannel string `mapstructure:"redis_channel"`
	// GRPCHost and GRPCPort are where this node serves the sync service.
	GRPCHost string `mapstructure:"grpc_host"`
	GRPCPort int    `mapstructure:"grpc_port"`
	// PeerAddr is the sync service of the remote peer, if any.
	PeerAddr string `mapstructure:"peer_addr"`
	// Room is the shared room this node publishes into.
	Room string `mapstructure:"room"`
}

// Addr returns the "host:port" gRPC listen address.
func (s SyncConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.GRPCHost, s.GRPCPort)
}

// JournalConfig toggles the PostgreSQL combat journal.
type JournalConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telnet    TelnetConfig    `mapstructure:"telnet"`
	Combat    CombatConfig    `mapstructure:"combat"`
	Reveal    RevealConfig    `mapstructure:"reveal"`
	Content   ContentConfig   `mapstructure:"content"`
	Narrative NarrativeConfig `mapstructure:"narrative"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Journal   JournalConfig   `mapstructure:"journal"`
}

// Validate checks all configuration invariants. Database settings are only
// checked when the journal is enabled.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string
	checks := []func() error{
		func() error { return validateLogging(c.Logging) },
		func() error { return validateTelnet(c.Telnet) },
		func() error { return validateCombat(c.Combat) },
		func() error { return validateReveal(c.Reveal) },
		func() error { return validateContent(c.Content, c.Narrative) },
		func() error { return validateNarrative(c.Narrative) },
		func() error { return validateSync(c.Sync) },
	}
	if c.Journal.Enabled {
		checks = append(checks, func() error { return validateDatabase(c.Database) })
	}
	for _, check := range checks {
		if err := check(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func joined(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.New(strings.Join(errs, "; "))
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if !validPort(d.Port) {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	return joined(errs)
}

func validateTelnet(t TelnetConfig) error {
	var errs []string
	if !validPort(t.Port) {
		errs = append(errs, fmt.Sprintf("telnet.port must be 1-65535, got %d", t.Port))
	}
	if t.ReadTimeout < 0 {
		errs = append(errs, "telnet.read_timeout must not be negative")
	}
	if t.WriteTimeout < 0 {
		errs = append(errs, "telnet.write_timeout must not be negative")
	}
	if t.IdleTimeout < 0 || t.IdleGrace < 0 {
		errs = append(errs, "telnet.idle_timeout and telnet.idle_grace must not be negative")
	}
	return joined(errs)
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateCombat(c CombatConfig) error {
	var errs []string
	if c.PartySize < 1 {
		errs = append(errs, fmt.Sprintf("combat.party_size must be >= 1, got %d", c.PartySize))
	}
	if c.FleeDC < 0 || c.FleeDC > 20 {
		errs = append(errs, fmt.Sprintf("combat.flee_dc must be 0-20, got %d", c.FleeDC))
	}
	if _, err := dice.Parse(c.ChestGoldExpr); err != nil {
		errs = append(errs, fmt.Sprintf("combat.chest_gold_expr: %v", err))
	}
	if _, err := dice.Parse(c.PotionHealExpr); err != nil {
		errs = append(errs, fmt.Sprintf("combat.potion_heal_expr: %v", err))
	}
	if c.ItemHeal < 0 {
		errs = append(errs, fmt.Sprintf("combat.item_heal must be >= 0, got %d", c.ItemHeal))
	}
	return joined(errs)
}

func validateReveal(r RevealConfig) error {
	var errs []string
	for name, d := range map[string]time.Duration{
		"rolling":      r.Rolling,
		"stagger":      r.Stagger,
		"reveal_hold":  r.RevealHold,
		"crit_buildup": r.CritBuildup,
		"clash":        r.Clash,
		"impact":       r.Impact,
	} {
		if d < 0 {
			errs = append(errs, fmt.Sprintf("reveal.%s must not be negative", name))
		}
	}
	if r.Tick <= 0 {
		errs = append(errs, "reveal.tick must be > 0")
	}
	return joined(errs)
}

func validateContent(c ContentConfig, n NarrativeConfig) error {
	if n.Mode == "lua" && c.NarrativeScript == "" {
		return errors.New("content.narrative_script must be set when narrative.mode is lua")
	}
	return nil
}

func validateNarrative(n NarrativeConfig) error {
	var errs []string
	switch n.Mode {
	case "template", "lua":
	case "anthropic":
		if n.APIKey == "" {
			errs = append(errs, "narrative.api_key must be set when narrative.mode is anthropic")
		}
		if n.Model == "" {
			errs = append(errs, "narrative.model must not be empty")
		}
		if n.MaxTokens < 1 {
			errs = append(errs, fmt.Sprintf("narrative.max_tokens must be >= 1, got %d", n.MaxTokens))
		}
	default:
		errs = append(errs, fmt.Sprintf("narrative.mode must be one of [template, lua, anthropic], got %q", n.Mode))
	}
	if n.Timeout < 0 {
		errs = append(errs, "narrative.timeout must not be negative")
	}
	return joined(errs)
}

func validateSync(s SyncConfig) error {
	var errs []string
	switch s.Mode {
	case "none":
	case "redis":
		if s.RedisAddr == "" {
			errs = append(errs, "sync.redis_addr must be set when sync.mode is redis")
		}
		if s.RedisChannel == "" {
			errs = append(errs, "sync.redis_channel must not be empty")
		}
	case "grpc":
		if s.GRPCHost == "" {
			errs = append(errs, "sync.grpc_host must not be empty")
		}
		if !validPort(s.GRPCPort) {
			errs = append(errs, fmt.Sprintf("sync.grpc_port must be 1-65535, got %d", s.GRPCPort))
		}
	default:
		errs = append(errs, fmt.Sprintf("sync.mode must be one of [none, redis, grpc], got %q", s.Mode))
	}
	if s.Mode != "none" && s.Room == "" {
		errs = append(errs, "sync.room must not be empty")
	}
	return joined(errs)
}

// LoadEnvFiles loads KEY=value pairs from the given dotenv files into the
// process environment. Missing files are skipped; variables already set win.
//
// Postcondition: Returns an error only for files that exist but cannot be parsed.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading env file %q: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from the given file path, applies DICECRAWL_
// environment variable overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix("DICECRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance holding only the default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telnet.host", "0.0.0.0")
	v.SetDefault("telnet.port", 4000)
	v.SetDefault("telnet.read_timeout", "0s")
	v.SetDefault("telnet.write_timeout", "30s")
	v.SetDefault("telnet.idle_timeout", "10m")
	v.SetDefault("telnet.idle_grace", "1m")

	v.SetDefault("combat.party_size", 1)
	v.SetDefault("combat.flee_dc", 6)
	v.SetDefault("combat.chest_gold_expr", "1d50+9")
	v.SetDefault("combat.potion_heal_expr", "1d8+2")
	v.SetDefault("combat.item_heal", 5)

	v.SetDefault("reveal.rolling", "800ms")
	v.SetDefault("reveal.stagger", "600ms")
	v.SetDefault("reveal.reveal_hold", "1s")
	v.SetDefault("reveal.crit_buildup", "2s")
	v.SetDefault("reveal.clash", "1s")
	v.SetDefault("reveal.impact", "800ms")
	v.SetDefault("reveal.tick", "100ms")

	v.SetDefault("content.enemies_file", "content/enemies.yaml")
	v.SetDefault("content.spawn_file", "content/spawn.yaml")
	v.SetDefault("content.narrative_script", "content/scripts/narrative.lua")

	v.SetDefault("narrative.mode", "template")
	v.SetDefault("narrative.model", "claude-3-5-haiku-latest")
	v.SetDefault("narrative.max_tokens", 200)
	v.SetDefault("narrative.timeout", "4s")
	v.SetDefault("narrative.instruction_limit", 100000)

	v.SetDefault("sync.mode", "none")
	v.SetDefault("sync.redis_addr", "localhost:6379")
	v.SetDefault("sync.redis_channel", "dicecrawl.snapshots")
	v.SetDefault("sync.grpc_host", "0.0.0.0")
	v.SetDefault("sync.grpc_port", 50051)
	v.SetDefault("sync.room", "lobby")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "dicecrawl")
	v.SetDefault("database.password", "dicecrawl")
	v.SetDefault("database.name", "dicecrawl")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("journal.enabled", false)
}
