// Package retention keeps only the newest archives per container.
package retention

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/kebairia/dockdump/internal/archive"
	"github.com/kebairia/dockdump/internal/logger"
)

// ErrPrune wraps every filesystem failure during a retention pass.
var ErrPrune = errors.New("prune failed")

var dateDir = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// archivePattern matches committed archives of one container.
func archivePattern(container string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(container) +
		`-\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.sql(\.zst|\.gz|\.zip)?$`)
}

// Pruner applies a keep-last policy under a backup root.
type Pruner struct {
	Root   string
	Keep   int
	Logger logger.Logger
}

// New returns a Pruner. keep <= 0 disables deletion of committed archives.
func New(root string, keep int, log logger.Logger) *Pruner {
	if log == nil {
		log = logger.Nop()
	}
	return &Pruner{Root: root, Keep: keep, Logger: log}
}

// Report summarises one retention pass.
type Report struct {
	PartsRemoved []string `json:"parts_removed,omitempty"`
	Kept         []string `json:"kept,omitempty"`
	Removed      []string `json:"removed,omitempty"`
	DirsRemoved  []string `json:"dirs_removed,omitempty"`
}

// Plan splits archives, already sorted oldest first, into the newest keep
// and the rest. keep <= 0 keeps everything.
func Plan(archives []string, keep int) (kept, removed []string) {
	if keep <= 0 || len(archives) <= keep {
		return archives, nil
	}
	cut := len(archives) - keep
	return archives[cut:], archives[:cut]
}

// Prune sweeps leftover .part files anywhere under Root, deletes all but the
// newest Keep archives of container and removes date directories left empty.
// Failures are collected; a pass never stops at the first one.
func (p *Pruner) Prune(container string) (Report, error) {
	var (
		report Report
		errs   *multierror.Error
	)

	parts, err := p.SweepParts()
	report.PartsRemoved = parts
	errs = multierror.Append(errs, err)

	if p.Keep <= 0 {
		return report, wrap(errs)
	}

	archives, err := p.Archives(container)
	if err != nil {
		errs = multierror.Append(errs, err)
		return report, wrap(errs)
	}

	kept, removed := Plan(archives, p.Keep)
	report.Kept = kept
	for _, path := range removed {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = multierror.Append(errs, fmt.Errorf("remove %q: %w", path, err))
			continue
		}
		report.Removed = append(report.Removed, path)
		p.Logger.Info("archive pruned", "container", container, "path", path)
	}

	dirs, err := p.removeEmptyDateDirs(container)
	report.DirsRemoved = dirs
	errs = multierror.Append(errs, err)

	return report, wrap(errs)
}

// SweepParts deletes every *.part file under Root and returns their paths.
func (p *Pruner) SweepParts() ([]string, error) {
	var (
		removed []string
		errs    *multierror.Error
	)
	err := filepath.WalkDir(p.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			errs = multierror.Append(errs, fmt.Errorf("walk %q: %w", path, err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), archive.PartSuffix) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = multierror.Append(errs, fmt.Errorf("remove %q: %w", path, err))
			return nil
		}
		removed = append(removed, path)
		p.Logger.Warn("removed leftover partial archive", "path", path)
		return nil
	})
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	return removed, errs.ErrorOrNil()
}

// Archives lists the committed archives of container, oldest first.
func (p *Pruner) Archives(container string) ([]string, error) {
	dir := filepath.Join(p.Root, container)
	days, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", dir, err)
	}

	pattern := archivePattern(container)
	var archives []string
	for _, day := range days {
		if !day.IsDir() || !dateDir.MatchString(day.Name()) {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(dir, day.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", filepath.Join(dir, day.Name()), err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() && pattern.MatchString(e.Name()) {
				archives = append(archives, filepath.Join(dir, day.Name(), e.Name()))
			}
		}
	}

	// Names embed the timestamp, so name order is creation order.
	sort.Slice(archives, func(i, j int) bool {
		return filepath.Base(archives[i]) < filepath.Base(archives[j])
	})
	return archives, nil
}

func (p *Pruner) removeEmptyDateDirs(container string) ([]string, error) {
	dir := filepath.Join(p.Root, container)
	days, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", dir, err)
	}

	var (
		removed []string
		errs    *multierror.Error
	)
	for _, day := range days {
		if !day.IsDir() || !dateDir.MatchString(day.Name()) {
			continue
		}
		path := filepath.Join(dir, day.Name())
		entries, err := os.ReadDir(path)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("read %q: %w", path, err))
			continue
		}
		if len(entries) > 0 {
			continue
		}
		if err := os.Remove(path); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("remove %q: %w", path, err))
			continue
		}
		removed = append(removed, path)
		p.Logger.Debug("removed empty directory", "path", path)
	}
	return removed, errs.ErrorOrNil()
}

func wrap(errs *multierror.Error) error {
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrPrune, err)
	}
	return nil
}
