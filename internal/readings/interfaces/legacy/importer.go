// Package legacy imports readings from JSON log files written before the database existed.
package legacy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"thermo-cloud/internal/observability/metrics"
	readingsapp "thermo-cloud/internal/readings/application"
	readings "thermo-cloud/internal/readings/domain"
)

// ImportedSuffix is appended to a file once all of its entries were processed.
const ImportedSuffix = ".imported"

// progressSuffix names the sidecar holding how many leading entries of a
// partially imported file were already processed.
const progressSuffix = ".progress"

// Submitter stores one submission.
type Submitter interface {
	Submit(ctx context.Context, sub readingsapp.Submission, transport string) (readings.Reading, error)
}

// Result summarizes one import run.
type Result struct {
	Files    int
	Imported int
	Rejected int
	Failed   int
}

// Importer reads every *.json file of a directory. Each file holds an array of submissions.
type Importer struct {
	dir       string
	submitter Submitter
	logger    *slog.Logger
}

// NewImporter constructs an Importer.
func NewImporter(dir string, submitter Submitter, logger *slog.Logger) (*Importer, error) {
	if dir == "" {
		return nil, errors.New("legacy: empty directory")
	}
	if submitter == nil {
		return nil, errors.New("legacy: nil submitter")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{dir: dir, submitter: submitter, logger: logger}, nil
}

// Run imports all pending files. A missing directory is not an error.
// Files that fail to parse or hit a storage error keep their name and are retried next run;
// a retry resumes after the entries recorded in the file's progress sidecar.
func (i *Importer) Run(ctx context.Context) (Result, error) {
	var result Result
	paths, err := filepath.Glob(filepath.Join(i.dir, "*.json"))
	if err != nil {
		return result, fmt.Errorf("legacy: list %s: %w", i.dir, err)
	}
	if len(paths) == 0 {
		return result, nil
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		imported, rejected, err := i.importFile(ctx, path)
		result.Imported += imported
		result.Rejected += rejected
		if err != nil {
			result.Failed++
			i.logger.Error("legacy import failed", "file", filepath.Base(path), "error", err)
			continue
		}
		if err := os.Rename(path, path+ImportedSuffix); err != nil {
			result.Failed++
			i.logger.Error("legacy mark imported failed", "file", filepath.Base(path), "error", err)
			continue
		}
		if err := os.Remove(path + progressSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			i.logger.Warn("legacy progress cleanup failed", "file", filepath.Base(path), "error", err)
		}
		result.Files++
		i.logger.Info("legacy file imported", "file", filepath.Base(path), "imported", imported, "rejected", rejected)
	}
	return result, nil
}

func (i *Importer) importFile(ctx context.Context, path string) (imported, rejected int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	var entries []readingsapp.Submission
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&entries); err != nil {
		return 0, 0, fmt.Errorf("parse: %w", err)
	}
	done, err := readProgress(path)
	if err != nil {
		return 0, 0, err
	}
	if done > 0 {
		i.logger.Info("legacy import resumed", "file", filepath.Base(path), "skipped", done)
	}
	for idx := done; idx < len(entries); idx++ {
		if _, err := i.submitter.Submit(ctx, entries[idx], metrics.TransportLegacy); err != nil {
			if errors.Is(err, readings.ErrValidation) {
				rejected++
				continue
			}
			if perr := writeProgress(path, idx); perr != nil {
				i.logger.Error("legacy progress write failed", "file", filepath.Base(path), "error", perr)
			}
			return imported, rejected, fmt.Errorf("entry %d: %w", idx, err)
		}
		imported++
	}
	return imported, rejected, nil
}

func readProgress(path string) (int, error) {
	raw, err := os.ReadFile(path + progressSuffix)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	done, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || done < 0 {
		return 0, fmt.Errorf("progress %s: invalid count %q", filepath.Base(path), strings.TrimSpace(string(raw)))
	}
	return done, nil
}

func writeProgress(path string, done int) error {
	tmp := path + progressSuffix + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(done)+"\n"), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path+progressSuffix)
}
