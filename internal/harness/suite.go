package harness

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// SuiteResult summarizes running every scenario in a directory.
type SuiteResult struct {
	TotalScenarios int             `json:"total_scenarios"`
	Passed         int             `json:"passed"`
	Failed         int             `json:"failed"`
	Failures       []SuiteFailure  `json:"failures,omitempty"`
	Results        []ScenarioEntry `json:"results"`
}

// ScenarioEntry is one scenario's outcome within a suite.
type ScenarioEntry struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
	Pass bool   `json:"pass"`
	Hash string `json:"hash,omitempty"`
}

// SuiteFailure is a scenario that failed to load, run or pass.
type SuiteFailure struct {
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// FindScenarios returns every .yaml and .yml file under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	slices.Sort(paths)
	return paths, nil
}

// RunSuite loads and runs each scenario. A scenario that fails to load or
// run counts as failed; the rest still run.
func RunSuite(ctx context.Context, paths []string) *SuiteResult {
	result := &SuiteResult{Results: []ScenarioEntry{}}
	for _, path := range paths {
		result.TotalScenarios++
		entry := ScenarioEntry{Path: path}

		fail := func(format string, args ...any) {
			result.Failed++
			result.Failures = append(result.Failures, SuiteFailure{
				ScenarioPath: path,
				Error:        fmt.Sprintf(format, args...),
			})
			result.Results = append(result.Results, entry)
		}

		scenario, err := LoadScenario(path)
		if err != nil {
			fail("failed to load scenario: %v", err)
			continue
		}
		entry.Name = scenario.Name

		run, err := RunContext(ctx, scenario)
		if err != nil {
			fail("scenario execution failed: %v", err)
			continue
		}
		entry.Hash = run.Hashes[run.State.Player]
		if !run.Pass {
			fail("scenario assertions failed: %v", run.Errors)
			continue
		}

		entry.Pass = true
		result.Passed++
		result.Results = append(result.Results, entry)
	}
	return result
}
