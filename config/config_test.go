package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alanwang67/replicated_files/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
  "log_level": "debug",
  "connect": {"rounds": 3},
  "truncate_on_start": true,
  "files": ["F.txt"],
  "replicas": [
    {"name": "r1", "host": "127.0.0.1", "port": 7001, "directory": "/tmp/r1"},
    {"name": "r2", "host": "127.0.0.1", "port": 7002},
    {"name": "r3", "host": "127.0.0.1", "port": 7003}
  ],
  "clients": [
    {"name": "c1", "servers": ["r1", "r2"], "rate": 20,
     "instructions": [{"server": "r1", "file": "F.txt", "line": "hello", "delay_ms": 5}]},
    {"name": "c2", "generator": {"files": ["a.txt", "b.txt"], "operations": 10, "seed": 3}}
  ]
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.Connect.Rounds)
	assert.Equal(t, 500*time.Millisecond, cfg.Connect.Delay())
	assert.True(t, cfg.TruncateOnStart)
	assert.Equal(t, []string{"F.txt"}, cfg.Files)
	require.Len(t, cfg.Replicas, 3)
	assert.Equal(t, "/tmp/r1", cfg.Replicas[0].Directory)
	assert.Equal(t, filepath.Join("data", "r2"), cfg.Replicas[1].Directory)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvDirectoryPrefix+"R2", "/srv/r2")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "/srv/r2", cfg.Replicas[1].Directory)
}

func TestLoadEnvFile(t *testing.T) {
	key := EnvDirectoryPrefix + "ENVFILE"
	t.Cleanup(func() { os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=/from/env/file\n"), 0o644))

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "/from/env/file", os.Getenv(key))

	assert.Error(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestPath(t *testing.T) {
	t.Setenv(EnvConfig, "")
	assert.Equal(t, DefaultPath, Path())

	t.Setenv(EnvConfig, "/etc/replicas.json")
	assert.Equal(t, "/etc/replicas.json", Path())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "{not json"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	replica := func(name string, port int) Replica {
		return Replica{Name: name, Host: "localhost", Port: port}
	}

	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"Valid", Config{Replicas: []Replica{replica("r1", 1), replica("r2", 2)}}, true},
		{"No Replicas", Config{}, false},
		{"Duplicate Replica", Config{Replicas: []Replica{replica("r1", 1), replica("r1", 2)}}, false},
		{"Delimiter In Name", Config{Replicas: []Replica{replica("r|1", 1)}}, false},
		{"Whitespace In Name", Config{Replicas: []Replica{replica("r 1", 1)}}, false},
		{"Bad Port", Config{Replicas: []Replica{replica("r1", 70000)}}, false},
		{"Missing Host", Config{Replicas: []Replica{{Name: "r1", Port: 1}}}, false},
		{"Unknown Client Server", Config{
			Replicas: []Replica{replica("r1", 1)},
			Clients:  []Client{{Name: "c1", Servers: []string{"r9"}}},
		}, false},
		{"Client Named Like Replica", Config{
			Replicas: []Replica{replica("r1", 1)},
			Clients:  []Client{{Name: "r1"}},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	self, peers, dir, err := cfg.Resolve("r1")
	require.NoError(t, err)
	assert.Equal(t, protocol.Identity{Name: "r1", Host: "127.0.0.1", Port: 7001}, self)
	assert.Equal(t, "/tmp/r1", dir)
	require.Len(t, peers, 2)
	assert.Equal(t, "r2", peers[0].Name)
	assert.Equal(t, "r3", peers[1].Name)

	_, _, _, err = cfg.Resolve("r9")
	assert.Error(t, err)
}

func TestClientWorkload(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	c1, err := cfg.Client("c1")
	require.NoError(t, err)
	ids, err := cfg.Identities(c1.Servers)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	instructions, err := c1.Workload()
	require.NoError(t, err)
	require.Len(t, instructions, 1)
	assert.Equal(t, 5*time.Millisecond, instructions[0].Delay())

	c2, err := cfg.Client("c2")
	require.NoError(t, err)
	ids, err = cfg.Identities(c2.Servers)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	instructions, err = c2.Workload()
	require.NoError(t, err)
	require.Len(t, instructions, 10)
	assert.Equal(t, "c2-0", instructions[0].Line)
	assert.Empty(t, instructions[0].Server)

	_, err = cfg.Client("nobody")
	assert.Error(t, err)
}
