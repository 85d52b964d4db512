package upload

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// StateDir is the directory, relative to the working directory, holding
// upload state and the upload lock.
const StateDir = ".azrael"

// State tracks the content hash of every document committed to a target.
type State struct {
	Target        string            `json:"target"`
	LastCommitSHA string            `json:"last_commit_sha"`
	DocHashes     map[string]string `json:"doc_hashes"`
	LastUpdated   time.Time         `json:"last_updated"`
}

func statePath(dir, target string) string {
	return filepath.Join(dir, StateDir, "state-"+target+".json")
}

// LoadState reads the upload state for target from dir/.azrael. A missing
// file yields an empty state.
func LoadState(dir, target string) (*State, error) {
	data, err := os.ReadFile(statePath(dir, target))
	if err != nil {
		if os.IsNotExist(err) {
			return &State{
				Target:    target,
				DocHashes: make(map[string]string),
			}, nil
		}
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state.DocHashes == nil {
		state.DocHashes = make(map[string]string)
	}
	state.Target = target
	return &state, nil
}

// Save writes the state to dir/.azrael/state-<target>.json.
func (s *State) Save(dir string) error {
	if err := os.MkdirAll(filepath.Join(dir, StateDir), 0o755); err != nil {
		return err
	}

	s.LastUpdated = time.Now()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(statePath(dir, s.Target), data, 0o644)
}

// IsChanged returns true if the document's hash differs from the stored one.
func (s *State) IsChanged(d Doc) bool {
	stored, ok := s.DocHashes[d.Key()]
	if !ok {
		return true
	}
	return stored != d.Hash
}

// Changed returns the documents whose content differs from the state, in
// input order.
func (s *State) Changed(docs []Doc) []Doc {
	out := make([]Doc, 0, len(docs))
	for _, d := range docs {
		if s.IsChanged(d) {
			out = append(out, d)
		}
	}
	return out
}

// Record stores the hashes of committed documents.
func (s *State) Record(docs []Doc) {
	for _, d := range docs {
		s.DocHashes[d.Key()] = d.Hash
	}
}

// GetGitCommitSHA returns the HEAD commit SHA of the repository containing
// dir, or an empty string if dir is not in a git repo.
func GetGitCommitSHA(dir string) string {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
