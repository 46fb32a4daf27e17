package metrics

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Metric is the record of one client operation.
type Metric struct {
	OperationIndex int     `json:"operation_index"`
	OperationType  string  `json:"operation_type"`
	Server         string  `json:"server"`
	Latency        float64 `json:"latency"`   // In seconds
	Timestamp      float64 `json:"timestamp"` // Time since start in seconds
	Succeeded      bool    `json:"succeeded"`
}

// Throughput is the number of operations completed per second up to m.
func (m Metric) Throughput() float64 {
	if m.Timestamp <= 0 {
		return 0
	}
	return float64(m.OperationIndex) / m.Timestamp
}

type Summary struct {
	Operations  int
	Failures    int
	MeanLatency float64
	MaxLatency  float64
}

func Summarize(metrics []Metric) Summary {
	var s Summary
	var total float64
	for _, m := range metrics {
		s.Operations++
		if !m.Succeeded {
			s.Failures++
		}
		total += m.Latency
		if m.Latency > s.MaxLatency {
			s.MaxLatency = m.Latency
		}
	}
	if s.Operations > 0 {
		s.MeanLatency = total / float64(s.Operations)
	}
	return s
}

func SaveJSON(metrics []Metric, filename string) error {
	data, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return fmt.Errorf("could not serialize metrics: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("could not write %s: %w", filename, err)
	}
	return nil
}

// LoadJSON reads metrics written by SaveJSON.
func LoadJSON(filename string) ([]Metric, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", filename, err)
	}

	var metrics []Metric
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", filename, err)
	}
	return metrics, nil
}

// SaveCSV writes one latency row per operation to latencyFile and the
// running throughput to throughputFile.
func SaveCSV(metrics []Metric, latencyFile, throughputFile string) error {
	latency := [][]string{{"OperationIndex", "Latency", "Succeeded"}}
	throughput := [][]string{{"Timestamp", "Throughput"}}
	for _, m := range metrics {
		latency = append(latency, []string{
			strconv.Itoa(m.OperationIndex),
			strconv.FormatFloat(m.Latency, 'f', 6, 64),
			strconv.FormatBool(m.Succeeded),
		})
		throughput = append(throughput, []string{
			strconv.FormatFloat(m.Timestamp, 'f', 6, 64),
			strconv.FormatFloat(m.Throughput(), 'f', 6, 64),
		})
	}

	if err := writeCSV(latencyFile, latency); err != nil {
		return err
	}
	return writeCSV(throughputFile, throughput)
}

func writeCSV(filename string, rows [][]string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", filename, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("could not write %s: %w", filename, err)
	}
	return f.Close()
}
