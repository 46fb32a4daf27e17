package workload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	g := NewGenerator([]string{"a.txt", "b.txt", "c.txt"})
	g.OperationCount = 500
	g.Servers = []string{"r1", "r2"}
	g.InstructionDelay = 15 * time.Millisecond
	g.Seed = 42

	instructions, err := g.Generate()
	require.NoError(t, err)
	require.Len(t, instructions, 500)

	counts := map[string]int{}
	for i, in := range instructions {
		assert.Contains(t, g.Files, in.File)
		assert.Contains(t, g.Servers, in.Server)
		assert.Equal(t, 15*time.Millisecond, in.Delay())
		if i == 7 {
			assert.Equal(t, "line-7", in.Line)
		}
		counts[in.File]++
	}

	// the head of the distribution gets the most writes
	assert.Greater(t, counts["a.txt"], counts["c.txt"])
}

func TestGenerateIsDeterministicForSeed(t *testing.T) {
	g := NewGenerator([]string{"a.txt", "b.txt"})
	g.Seed = 7

	first, err := g.Generate()
	require.NoError(t, err)
	second, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerateSingleFile(t *testing.T) {
	g := NewGenerator([]string{"only.txt"})
	g.OperationCount = 10

	instructions, err := g.Generate()
	require.NoError(t, err)
	for _, in := range instructions {
		assert.Equal(t, "only.txt", in.File)
		assert.Empty(t, in.Server)
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name string
		gen  *Generator
	}{
		{"No Files", NewGenerator(nil)},
		{"Negative Count", &Generator{Files: []string{"a"}, OperationCount: -1, ZipfianS: 1.01}},
		{"Bad Skew", &Generator{Files: []string{"a", "b"}, OperationCount: 1, ZipfianS: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.gen.Generate()
			assert.Error(t, err)
		})
	}
}
