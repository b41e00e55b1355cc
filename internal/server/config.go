package server

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lox/teenpatti/internal/auth"
	"github.com/lox/teenpatti/internal/game"
	"github.com/lox/teenpatti/internal/store"
)

// ServerConfig represents the complete server configuration
type ServerConfig struct {
	Server ServerSettings
	Game   GameSettings
	Store  StoreSettings
	Auth   AuthSettings
}

// configFile mirrors ServerConfig with every block optional.
type configFile struct {
	Server *ServerSettings `hcl:"server,block"`
	Game   *GameSettings   `hcl:"game,block"`
	Store  *StoreSettings  `hcl:"store,block"`
	Auth   *AuthSettings   `hcl:"auth,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// GameSettings are the table parameters every session is created with.
type GameSettings struct {
	Boot           int    `hcl:"boot,optional"`
	InitialStake   int    `hcl:"initial_stake,optional"`
	MaxStake       int    `hcl:"max_stake,optional"`
	RequestTimeout string `hcl:"request_timeout,optional"`
	DefaultRounds  int    `hcl:"default_rounds,optional"`
	MaxPlayers     int    `hcl:"max_players,optional"`
	Seed           int64  `hcl:"seed,optional"`
}

// StoreSettings selects the persistence backend.
type StoreSettings struct {
	Driver string `hcl:"driver,optional"`
	DSN    string `hcl:"dsn,optional"`
}

// AuthSettings configures how connections authenticate.
type AuthSettings struct {
	ValidatorURL string        `hcl:"validator_url,optional"`
	AdminSecret  string        `hcl:"admin_secret,optional"`
	Tokens       []TokenConfig `hcl:"token,block"`
}

// TokenConfig is a static token granting a name and role.
type TokenConfig struct {
	Token string `hcl:"token,label"`
	Name  string `hcl:"name"`
	Role  string `hcl:"role"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	c := &ServerConfig{}
	c.applyDefaults()
	return c
}

func (c *ServerConfig) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Game.Boot == 0 {
		c.Game.Boot = game.DefaultBoot
	}
	if c.Game.InitialStake == 0 {
		c.Game.InitialStake = game.DefaultInitialStake
	}
	if c.Game.MaxStake == 0 {
		c.Game.MaxStake = game.DefaultMaxStake
	}
	if c.Game.RequestTimeout == "" {
		c.Game.RequestTimeout = game.DefaultRequestTimeout.String()
	}
	if c.Game.DefaultRounds == 0 {
		c.Game.DefaultRounds = game.DefaultTotalRounds
	}
	if c.Game.MaxPlayers == 0 {
		c.Game.MaxPlayers = game.DefaultMaxPlayers
	}
	if c.Store.Driver == "" {
		c.Store.Driver = store.DriverSQLite
	}
	if c.Store.DSN == "" && c.Store.Driver == store.DriverSQLite {
		c.Store.DSN = "teenpatti.db"
	}
}

// LoadServerConfig loads server configuration from HCL file. A missing file
// yields the defaults.
func LoadServerConfig(filename string) (*ServerConfig, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultServerConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var raw configFile
	diags = gohcl.DecodeBody(file.Body, nil, &raw)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	var config ServerConfig
	if raw.Server != nil {
		config.Server = *raw.Server
	}
	if raw.Game != nil {
		config.Game = *raw.Game
	}
	if raw.Store != nil {
		config.Store = *raw.Store
	}
	if raw.Auth != nil {
		config.Auth = *raw.Auth
	}
	config.applyDefaults()
	return &config, nil
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}

	if c.Game.Boot <= 0 {
		return fmt.Errorf("game: boot must be positive")
	}
	if c.Game.InitialStake <= 0 {
		return fmt.Errorf("game: initial stake must be positive")
	}
	if c.Game.MaxStake < c.Game.InitialStake || c.Game.MaxStake > game.DefaultMaxStake {
		return fmt.Errorf("game: max stake must be between the initial stake and %d", game.DefaultMaxStake)
	}
	if c.Game.DefaultRounds <= 0 {
		return fmt.Errorf("game: default rounds must be positive")
	}
	if c.Game.MaxPlayers < 2 || c.Game.MaxPlayers*game.HandSize > 52 {
		return fmt.Errorf("game: max players must be between 2 and %d", 52/game.HandSize)
	}
	if d, err := time.ParseDuration(c.Game.RequestTimeout); err != nil || d <= 0 {
		return fmt.Errorf("game: invalid request timeout %q", c.Game.RequestTimeout)
	}

	switch c.Store.Driver {
	case store.DriverSQLite, store.DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store: %s driver needs a dsn", c.Store.Driver)
		}
	case store.DriverMemory:
	default:
		return fmt.Errorf("store: unknown driver %q", c.Store.Driver)
	}

	for _, t := range c.Auth.Tokens {
		if _, err := auth.ParseRole(t.Role); err != nil {
			return fmt.Errorf("auth token %q: %w", t.Name, err)
		}
	}
	return nil
}

// GetServerAddress returns the full server address
func (c *ServerConfig) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// GameConfig returns the engine template for new sessions.
func (c *ServerConfig) GameConfig() game.Config {
	timeout, _ := time.ParseDuration(c.Game.RequestTimeout)
	return game.Config{
		Boot:           c.Game.Boot,
		InitialStake:   c.Game.InitialStake,
		MaxStake:       c.Game.MaxStake,
		RequestTimeout: timeout,
		MaxPlayers:     c.Game.MaxPlayers,
		Seed:           c.Game.Seed,
	}
}

// Validator builds the auth chain: static tokens and the admin secret first,
// then the external validator. With nothing configured every connection is
// trusted (dev mode).
func (c *ServerConfig) Validator() auth.Validator {
	if len(c.Auth.Tokens) == 0 && c.Auth.AdminSecret == "" && c.Auth.ValidatorURL == "" {
		return auth.NewNoopValidator()
	}

	tokens := make(map[string]auth.Identity, len(c.Auth.Tokens))
	for _, t := range c.Auth.Tokens {
		role, _ := auth.ParseRole(t.Role)
		tokens[t.Token] = auth.Identity{Name: t.Name, Role: role}
	}
	chain := auth.NewChain(auth.NewStaticValidator(tokens, c.Auth.AdminSecret))
	if c.Auth.ValidatorURL != "" {
		chain = append(chain, auth.NewHTTPValidator(c.Auth.ValidatorURL, c.Auth.AdminSecret))
	}
	return chain
}
