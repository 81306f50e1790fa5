package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gremlinsdk/harness/pkg/telemetry"
)

// Storage persists run reports to outputDir as one JSON file per run,
// pruning down to the keepLastN most recent once a run is saved.
type Storage struct {
	outputDir string
	keepLastN int
	log       *telemetry.Logger
}

// NewStorage creates a report directory if it does not already exist.
func NewStorage(outputDir string, keepLastN int, log *telemetry.Logger) (*Storage, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create output dir %s: %w", outputDir, err)
	}
	return &Storage{outputDir: outputDir, keepLastN: keepLastN, log: log}, nil
}

// Save writes r as an indented JSON file named by its start time and test id.
func (s *Storage) Save(r *Run) (string, error) {
	name := fmt.Sprintf("run-%s-%s.json", r.StartTime.Format("20060102-150405"), r.TestID)
	path := filepath.Join(s.outputDir, name)

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: marshal run: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("report: write %s: %w", path, err)
	}
	s.log.WithField("path", path).Info("report saved")

	if s.keepLastN > 0 {
		if err := s.prune(); err != nil {
			s.log.WithField("error", err.Error()).Warn("report: prune failed")
		}
	}
	return path, nil
}

func (s *Storage) prune() error {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	excess := len(names) - s.keepLastN
	for i := 0; i < excess; i++ {
		_ = os.Remove(filepath.Join(s.outputDir, names[i]))
	}
	return nil
}
