package operations

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ReportFilename is written at the backup root after every run.
const ReportFilename = "last-run.json"

// Report is the on-disk record of the most recent run.
type Report struct {
	RunOutcome
	ExitCode int `json:"exit_code"`
}

// WriteReport stores out as dir/last-run.json. The file is replaced
// atomically so readers never see a partial report.
func WriteReport(dir string, out RunOutcome) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure report directory %q: %w", dir, err)
	}
	path := filepath.Join(dir, ReportFilename)

	tmp, err := os.CreateTemp(dir, "."+ReportFilename+".*")
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(Report{RunOutcome: out, ExitCode: out.ExitCode()}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode report JSON: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync report file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close report file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod report file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename report file: %w", err)
	}
	return path, nil
}

// LoadReport reads the report of the last run from dir.
func LoadReport(dir string) (Report, error) {
	path := filepath.Join(dir, ReportFilename)
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("couldn't open report file %q: %w", path, err)
	}
	defer f.Close()

	var r Report
	if err := json.NewDecoder(f).Decode(&r); err != nil {
		return Report{}, fmt.Errorf("decode report JSON: %w", err)
	}
	return r, nil
}
