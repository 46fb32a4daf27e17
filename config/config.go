package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alanwang67/replicated_files/protocol"
	"github.com/alanwang67/replicated_files/workload"
	"github.com/joho/godotenv"
)

const (
	DefaultPath    = "config.json"
	DefaultEnvFile = ".env"

	EnvConfig          = "REPLICA_CONFIG"
	EnvLogLevel        = "REPLICA_LOG_LEVEL"
	EnvDirectoryPrefix = "REPLICA_DIRECTORY_"

	defaultConnectRounds = 5
	defaultConnectDelay  = 500
)

// Config structure for loading config.json
type Config struct {
	LogLevel        string    `json:"log_level"`
	Connect         Connect   `json:"connect"`
	TruncateOnStart bool      `json:"truncate_on_start"`
	Files           []string  `json:"files"` // Created on every replica at start if missing
	Replicas        []Replica `json:"replicas"`
	Clients         []Client  `json:"clients"`
}

// Connect bounds the startup loop that connects a replica to its peers.
type Connect struct {
	Rounds  int `json:"rounds"`
	DelayMs int `json:"delay_ms"`
}

func (c Connect) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

// Replica contains details about each server
type Replica struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Directory string `json:"directory"`
}

func (r Replica) Identity() protocol.Identity {
	return protocol.Identity{Name: r.Name, Host: r.Host, Port: r.Port}
}

// Client describes a workload client: the replicas it talks to, how fast
// and what it writes. Instructions take precedence over Generator.
type Client struct {
	Name         string                 `json:"name"`
	Servers      []string               `json:"servers"`
	Rate         float64                `json:"rate"` // Writes per second; zero is unlimited
	Instructions []workload.Instruction `json:"instructions"`
	Generator    *Generator             `json:"generator"`
}

type Generator struct {
	Files      []string `json:"files"`
	Operations int      `json:"operations"`
	ZipfianS   float64  `json:"zipf_s"`
	DelayMs    int      `json:"delay_ms"`
	Seed       int64    `json:"seed"`
}

// Path returns the config file to load: $REPLICA_CONFIG or config.json in
// the working directory.
func Path() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return DefaultPath
}

// LoadEnv loads environment files into the process environment without
// overriding variables that are already set. With no arguments it loads
// .env when it exists.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(DefaultEnvFile); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		files = []string{DefaultEnvFile}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("could not load env: %w", err)
	}
	return nil
}

// Load reads a config file, applies environment overrides and defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = level
	}
	for i := range c.Replicas {
		if dir := os.Getenv(EnvDirectoryPrefix + strings.ToUpper(c.Replicas[i].Name)); dir != "" {
			c.Replicas[i].Directory = dir
		}
	}
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Connect.Rounds <= 0 {
		c.Connect.Rounds = defaultConnectRounds
	}
	if c.Connect.DelayMs <= 0 {
		c.Connect.DelayMs = defaultConnectDelay
	}
	for i := range c.Replicas {
		if c.Replicas[i].Directory == "" {
			c.Replicas[i].Directory = filepath.Join("data", c.Replicas[i].Name)
		}
	}
}

// Validate checks that names are unique and usable on the wire, that
// ports are in range and that clients only name configured replicas.
func (c *Config) Validate() error {
	if len(c.Replicas) == 0 {
		return errors.New("config: no replicas")
	}

	replicas := make(map[string]bool, len(c.Replicas))
	for _, r := range c.Replicas {
		if err := validName(r.Name); err != nil {
			return fmt.Errorf("config: replica: %w", err)
		}
		if replicas[r.Name] {
			return fmt.Errorf("config: duplicate replica %q", r.Name)
		}
		replicas[r.Name] = true

		if r.Host == "" {
			return fmt.Errorf("config: replica %q has no host", r.Name)
		}
		if r.Port <= 0 || r.Port > 65535 {
			return fmt.Errorf("config: replica %q has bad port %d", r.Name, r.Port)
		}
	}

	clients := make(map[string]bool, len(c.Clients))
	for _, cl := range c.Clients {
		if err := validName(cl.Name); err != nil {
			return fmt.Errorf("config: client: %w", err)
		}
		if clients[cl.Name] || replicas[cl.Name] {
			return fmt.Errorf("config: duplicate name %q", cl.Name)
		}
		clients[cl.Name] = true

		for _, s := range cl.Servers {
			if !replicas[s] {
				return fmt.Errorf("config: client %q names unknown replica %q", cl.Name, s)
			}
		}
		for _, in := range cl.Instructions {
			if in.Server != "" && !replicas[in.Server] {
				return fmt.Errorf("config: client %q writes to unknown replica %q", cl.Name, in.Server)
			}
		}
	}
	return nil
}

func validName(name string) error {
	switch {
	case name == "":
		return errors.New("empty name")
	case strings.Contains(name, protocol.Delimiter):
		return fmt.Errorf("name %q contains %q", name, protocol.Delimiter)
	case strings.ContainsAny(name, " \t\r\n"):
		return fmt.Errorf("name %q contains whitespace", name)
	}
	return nil
}

// Resolve returns what a replica needs to start: its own identity, the
// identities of every other replica and its storage directory.
func (c *Config) Resolve(name string) (protocol.Identity, []protocol.Identity, string, error) {
	var self *Replica
	peers := make([]protocol.Identity, 0, len(c.Replicas))
	for i, r := range c.Replicas {
		if r.Name == name {
			self = &c.Replicas[i]
			continue
		}
		peers = append(peers, r.Identity())
	}

	if self == nil {
		return protocol.Identity{}, nil, "", fmt.Errorf("config: unknown replica %q", name)
	}
	return self.Identity(), peers, self.Directory, nil
}

// Identities maps replica names to identities. No names means every
// replica.
func (c *Config) Identities(names []string) ([]protocol.Identity, error) {
	if len(names) == 0 {
		ids := make([]protocol.Identity, len(c.Replicas))
		for i, r := range c.Replicas {
			ids[i] = r.Identity()
		}
		return ids, nil
	}

	ids := make([]protocol.Identity, 0, len(names))
	for _, name := range names {
		self, _, _, err := c.Resolve(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, self)
	}
	return ids, nil
}

func (c *Config) Client(name string) (*Client, error) {
	for i := range c.Clients {
		if c.Clients[i].Name == name {
			return &c.Clients[i], nil
		}
	}
	return nil, fmt.Errorf("config: unknown client %q", name)
}

// Workload returns the client's explicit instructions or, if there are
// none, the ones its generator produces.
func (c *Client) Workload() ([]workload.Instruction, error) {
	if len(c.Instructions) > 0 || c.Generator == nil {
		return c.Instructions, nil
	}

	g := workload.NewGenerator(c.Generator.Files)
	g.Servers = c.Servers
	g.LinePrefix = c.Name
	g.Seed = c.Generator.Seed
	g.InstructionDelay = time.Duration(c.Generator.DelayMs) * time.Millisecond
	if c.Generator.Operations > 0 {
		g.OperationCount = c.Generator.Operations
	}
	if c.Generator.ZipfianS > 0 {
		g.ZipfianS = c.Generator.ZipfianS
	}
	return g.Generate()
}
