package workload

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// InstructionTypeWrite is the only operation a replica accepts.
const InstructionTypeWrite = "write"

// Instruction represents a single write in the workload.
type Instruction struct {
	Server  string `json:"server,omitempty"` // Target replica; empty picks one at random
	File    string `json:"file"`
	Line    string `json:"line"`
	DelayMs int    `json:"delay_ms,omitempty"` // Pause after the instruction
}

func (i Instruction) Delay() time.Duration {
	return time.Duration(i.DelayMs) * time.Millisecond
}

// Generator builds a write workload whose target files follow a Zipfian
// distribution, so a few files see most of the contention.
type Generator struct {
	Files            []string      // Candidate files, most popular first
	Servers          []string      // Replicas to spread writes over; empty leaves the choice to the client
	ZipfianS         float64       // S parameter for Zipfian distribution (skewness), must be > 1
	OperationCount   int           // Total number of operations to generate
	LinePrefix       string        // Lines are LinePrefix-<index>
	InstructionDelay time.Duration // Optional delay between instructions
	Seed             int64         // Zero seeds from the current time
}

// NewGenerator creates a Generator with default parameters.
func NewGenerator(files []string) *Generator {
	return &Generator{
		Files:          files,
		ZipfianS:       1.01,
		OperationCount: 100,
		LinePrefix:     "line",
	}
}

// Generate creates the workload described by the generator's parameters.
func (g *Generator) Generate() ([]Instruction, error) {
	if len(g.Files) == 0 {
		return nil, errors.New("workload: no files to write to")
	}
	if g.OperationCount < 0 {
		return nil, fmt.Errorf("workload: negative operation count %d", g.OperationCount)
	}

	seed := g.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(seed))

	var zipf *rand.Zipf
	if len(g.Files) > 1 {
		zipf = rand.NewZipf(r, g.ZipfianS, 1, uint64(len(g.Files)-1))
		if zipf == nil {
			return nil, fmt.Errorf("workload: invalid zipf parameter s=%v", g.ZipfianS)
		}
	}

	instructions := make([]Instruction, 0, g.OperationCount)
	for i := 0; i < g.OperationCount; i++ {
		file := g.Files[0]
		if zipf != nil {
			file = g.Files[zipf.Uint64()]
		}

		var server string
		if len(g.Servers) > 0 {
			server = g.Servers[r.Intn(len(g.Servers))]
		}

		instructions = append(instructions, Instruction{
			Server:  server,
			File:    file,
			Line:    fmt.Sprintf("%s-%d", g.LinePrefix, i),
			DelayMs: int(g.InstructionDelay / time.Millisecond),
		})
	}

	return instructions, nil
}
