package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// dataDirCandidates are directories checked, in order, for existing entity
// JSON when suggesting a data directory.
var dataDirCandidates = []string{"data", "FIREBASE/data", "firebase/data", "entities", "content"}

// detectDataDir returns the first candidate directory that contains JSON.
func detectDataDir() string {
	for _, dir := range dataDirCandidates {
		matches, _ := filepath.Glob(filepath.Join(dir, "*.json"))
		if len(matches) > 0 {
			return dir
		}
		nested, _ := filepath.Glob(filepath.Join(dir, "*", "*.json"))
		if len(nested) > 0 {
			return dir
		}
	}
	return "data"
}

// detectCredentials returns GOOGLE_APPLICATION_CREDENTIALS when it points at
// an existing file.
func detectCredentials() string {
	path := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// RunWizard runs an interactive configuration wizard, saves the result to
// path and returns it.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to azrael! Let's configure your entity pipeline.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Target.
	targetPrompt := promptui.Select{
		Label: "Where should upload write documents",
		Items: []string{
			"local     - SQLite mirror only (safe for trying things out)",
			"firestore - Cloud Firestore",
		},
	}
	targetIdx, _, err := targetPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("target selection: %w", err)
	}
	cfg.Target = []Target{TargetLocal, TargetFirestore}[targetIdx]

	// 2. Firestore project and credentials.
	if cfg.Target == TargetFirestore {
		projectPrompt := promptui.Prompt{
			Label:   "Firebase project id",
			Default: os.Getenv("GOOGLE_CLOUD_PROJECT"),
			Validate: func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("project id is required")
				}
				return nil
			},
		}
		cfg.ProjectID, err = projectPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("project id: %w", err)
		}

		credsPrompt := promptui.Prompt{
			Label:   "Service account JSON (blank for application default credentials)",
			Default: detectCredentials(),
		}
		cfg.CredentialsFile, err = credsPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("credentials file: %w", err)
		}
	}

	// 3. Data directory.
	dataPrompt := promptui.Prompt{
		Label:   "Directory holding entity JSON files",
		Default: detectDataDir(),
	}
	cfg.DataDir, err = dataPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	// 4. Extra exclude patterns.
	excludePrompt := promptui.Prompt{
		Label:   "Extra exclude patterns (comma-separated, leave blank for defaults)",
		Default: "",
	}
	excludeStr, err := excludePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}
	if excludeStr != "" {
		cfg.Exclude = append(cfg.Exclude, splitAndTrim(excludeStr)...)
	}

	// 5. Batch size.
	batchPrompt := promptui.Prompt{
		Label:    fmt.Sprintf("Documents per batch (1-%d)", MaxBatchSize),
		Default:  strconv.Itoa(cfg.BatchSize),
		Validate: validateBatchSize,
	}
	batchStr, err := batchPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("batch size: %w", err)
	}
	cfg.BatchSize, _ = strconv.Atoi(strings.TrimSpace(batchStr))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	if cfg.Target == TargetFirestore && cfg.CredentialsFile == "" {
		fmt.Println("Note: run `gcloud auth application-default login` before uploading.")
	}
	return cfg, nil
}

func validateBatchSize(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("not a number")
	}
	if n < 1 || n > MaxBatchSize {
		return fmt.Errorf("must be between 1 and %d", MaxBatchSize)
	}
	return nil
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
