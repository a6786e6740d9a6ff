// Package history persists completed analysis reports to a Parquet file
// and exports them as timestamped YAML snapshots.
package history

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"

	"github.com/nabta-labs/leafscope/internal/models"
)

// analysisRow is the flattened Parquet schema: one row per classified
// leaf. A report with no classified leaves still gets a single row with
// leaf_id 0 so it survives the round trip.
type analysisRow struct {
	ImageID             string  `parquet:"image_id"`
	GeneratedAtMillis   int64   `parquet:"generated_at_ms"`
	TotalLeavesDetected int     `parquet:"total_leaves_detected"`
	LeafID              int     `parquet:"leaf_id"`
	PlantName           string  `parquet:"plant_name"`
	DiseaseName         string  `parquet:"disease_name"`
	DiseasePercentage   float64 `parquet:"disease_percentage"`
	Severity            string  `parquet:"severity"`
	Image               string  `parquet:"image_base64"`
}

// Store is an append-only analysis archive backed by a single Parquet
// file.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Append adds a report to the archive. The file is rewritten atomically;
// Parquet files cannot grow in place.
func (s *Store) Append(report *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readRows()
	if err != nil {
		return err
	}
	rows = append(rows, toRows(report)...)

	return s.writeRows(rows)
}

// Load returns every archived report in insertion order.
func (s *Store) Load() ([]models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readRows()
	if err != nil {
		return nil, err
	}
	return fromRows(rows), nil
}

// ExportYAML writes the full archive to a timestamped YAML file under
// dir and returns the path written.
func (s *Store) ExportYAML(dir string) (string, error) {
	reports, err := s.Load()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	export := struct {
		ExportedAt string          `yaml:"exportedat"`
		Analyses   []models.Report `yaml:"analyses"`
	}{
		ExportedAt: timestamp,
		Analyses:   reports,
	}

	data, err := yaml.Marshal(&export)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("analyses-%s.yaml", timestamp))
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write YAML file: %w", err)
	}

	slog.Info("Exported analysis history", "path", filename, "reports", len(reports))
	return filename, nil
}

func (s *Store) readRows() ([]analysisRow, error) {
	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat history file: %w", err)
	}
	if info.Size() == 0 {
		return nil, nil
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[analysisRow](pf)
	defer reader.Close()

	var rows []analysisRow
	batch := make([]analysisRow, 128)
	for {
		n, err := reader.Read(batch)
		if n > 0 {
			rows = append(rows, batch[:n]...)
		}
		if err != nil {
			break
		}
	}
	return rows, nil
}

func (s *Store) writeRows(rows []analysisRow) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	tmp := s.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create history file: %w", err)
	}

	writer := parquet.NewGenericWriter[analysisRow](file)
	if _, err := writer.Write(rows); err != nil {
		file.Close()
		return fmt.Errorf("failed to write history rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		file.Close()
		return fmt.Errorf("failed to finalize history file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close history file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}

func toRows(report *models.Report) []analysisRow {
	base := analysisRow{
		ImageID:             report.ImageID,
		GeneratedAtMillis:   report.GeneratedAt.UnixMilli(),
		TotalLeavesDetected: report.TotalLeavesDetected,
	}

	if len(report.Leaves) == 0 {
		return []analysisRow{base}
	}

	rows := make([]analysisRow, 0, len(report.Leaves))
	for _, leaf := range report.Leaves {
		row := base
		row.LeafID = leaf.LeafID
		row.PlantName = leaf.PlantName
		row.DiseaseName = leaf.DiseaseName
		row.DiseasePercentage = leaf.DiseasePercentage
		row.Severity = leaf.Severity
		row.Image = leaf.Image
		rows = append(rows, row)
	}
	return rows
}

func fromRows(rows []analysisRow) []models.Report {
	var reports []models.Report
	index := make(map[string]int)

	for _, row := range rows {
		i, seen := index[row.ImageID]
		if !seen {
			reports = append(reports, models.Report{
				ImageID:             row.ImageID,
				GeneratedAt:         time.UnixMilli(row.GeneratedAtMillis),
				TotalLeavesDetected: row.TotalLeavesDetected,
				Leaves:              []models.Leaf{},
			})
			i = len(reports) - 1
			index[row.ImageID] = i
		}

		if row.LeafID == 0 {
			continue
		}
		reports[i].Leaves = append(reports[i].Leaves, models.Leaf{
			LeafID:            row.LeafID,
			PlantName:         row.PlantName,
			DiseaseName:       row.DiseaseName,
			DiseasePercentage: row.DiseasePercentage,
			Severity:          row.Severity,
			Image:             row.Image,
		})
	}
	return reports
}
