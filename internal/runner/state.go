// SPDX-License-Identifier: AGPL-3.0-or-later

package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/raibid-labs/cfgsync/internal/projection"
	"github.com/raibid-labs/cfgsync/internal/reporter"
)

// StateStore handles reading and writing runner state.
type StateStore struct {
	baseDir string
}

// NewStateStore creates a store at the given base directory (e.g. .cfgsync/run).
func NewStateStore(baseDir string) *StateStore {
	return &StateStore{baseDir: baseDir}
}

// Dir returns the base directory.
func (s *StateStore) Dir() string { return s.baseDir }

func (s *StateStore) lastRunPath() string {
	return filepath.Join(s.baseDir, "last-run.json")
}

func (s *StateStore) resultPath(repo string) string {
	return filepath.Join(s.baseDir, "repos", repo+".json")
}

// ReadLastRun loads the last persisted run. It returns nil, nil when there is none.
func (s *StateStore) ReadLastRun() (*reporter.Summary, error) {
	var last reporter.Summary
	ok, err := readJSON(s.lastRunPath(), &last)
	if err != nil || !ok {
		return nil, err
	}
	return &last, nil
}

// ReadResult loads the last result recorded for repo, nil when there is none.
func (s *StateStore) ReadResult(repo string) (*reporter.Result, error) {
	var res reporter.Result
	ok, err := readJSON(s.resultPath(repo), &res)
	if err != nil || !ok {
		return nil, err
	}
	return &res, nil
}

// WriteLastRun saves the run summary.
func (s *StateStore) WriteLastRun(sum *reporter.Summary) error {
	data, err := reporter.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encoding last run: %w", err)
	}
	return projection.AtomicWrite(s.lastRunPath(), data)
}

// WriteResult saves one repository's result.
func (s *StateStore) WriteResult(res reporter.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result for %s: %w", res.Repo, err)
	}
	return projection.AtomicWrite(s.resultPath(res.Repo), append(data, '\n'))
}

// Reset clears the state directory.
func (s *StateStore) Reset() error {
	return os.RemoveAll(s.baseDir)
}

// LoadRetry returns the repositories the last run left failed, non-compliant or skipped.
func (s *StateStore) LoadRetry() ([]string, error) {
	last, err := s.ReadLastRun()
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}
	return last.Retry(), nil
}

func readJSON(path string, v any) (bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewDecoder(f).Decode(v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", path, err)
	}
	return true, nil
}
