// Package upload stages selected file content into the run workspace and
// hands out opaque references for it. Staging tolerates unreadable files
// up to a failure budget; the distiller resolves references back to
// content when building prompts.
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ShayCichocki/glassbox/pkg/models"
)

// ManifestName is the persisted staging record filename.
const ManifestName = "upload_config.json"

// StagedFile records one successfully staged file.
type StagedFile struct {
	// Path is the source path relative to the target root.
	Path string `json:"path"`
	// Ref is the opaque reference the content is retrievable by.
	Ref string `json:"ref"`
	// SHA256 is the content digest, hex-encoded.
	SHA256 string `json:"sha256"`
	// Bytes is the staged content length.
	Bytes int64 `json:"bytes"`
}

// FailedFile records one file that could not be staged.
type FailedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Manifest is the persisted outcome of one staging pass.
type Manifest struct {
	Target string       `json:"target"`
	Staged []StagedFile `json:"staged"`
	Failed []FailedFile `json:"failed,omitempty"`
}

// ExhaustionError means staging failures exceeded the budget and the run
// cannot proceed with a representative file set.
type ExhaustionError struct {
	// Failures is how many files failed to stage.
	Failures int
	// Limit is the configured budget.
	Limit int
}

// Error implements error.
func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("staging failed for %d files, budget is %d", e.Failures, e.Limit)
}

// Stager copies selected content into a staging directory keyed by ref.
type Stager struct {
	root        string
	stageDir    string
	maxFailures int
	debugLog    func(format string, args ...interface{})
}

// NewStager creates a stager reading from root and writing under
// stageDir. maxFailures bounds tolerated per-file failures.
func NewStager(root, stageDir string, maxFailures int) *Stager {
	return &Stager{
		root:        root,
		stageDir:    stageDir,
		maxFailures: maxFailures,
		debugLog:    func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (s *Stager) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		s.debugLog = fn
	}
}

// Stage copies every selected inventory entry into the staging directory,
// writing the ref back onto the entry. Unreadable files degrade to noise
// and are recorded as failed; more failures than the budget aborts with
// an *ExhaustionError.
func (s *Stager) Stage(ctx context.Context, inv *models.FileInventory) (*Manifest, error) {
	if err := os.MkdirAll(s.stageDir, 0755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	manifest := &Manifest{Target: inv.Target}
	for i := range inv.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := &inv.Entries[i]
		if e.Binary || !e.Role.Selected() {
			continue
		}

		staged, err := s.stageOne(e.Path)
		if err != nil {
			s.debugLog("[upload.Stage] %s failed: %v", e.Path, err)
			manifest.Failed = append(manifest.Failed, FailedFile{Path: e.Path, Reason: err.Error()})
			e.Role = models.RoleNoise
			if len(manifest.Failed) > s.maxFailures {
				return nil, &ExhaustionError{Failures: len(manifest.Failed), Limit: s.maxFailures}
			}
			continue
		}
		e.Ref = staged.Ref
		manifest.Staged = append(manifest.Staged, staged)
	}

	s.debugLog("[upload.Stage] staged %d files, %d failed", len(manifest.Staged), len(manifest.Failed))
	return manifest, nil
}

// stageOne copies one file into the staging directory under a fresh ref.
func (s *Stager) stageOne(relPath string) (StagedFile, error) {
	data, err := os.ReadFile(filepath.Join(s.root, relPath))
	if err != nil {
		return StagedFile{}, err
	}

	ref := uuid.New().String()
	if err := os.WriteFile(filepath.Join(s.stageDir, ref), data, 0644); err != nil {
		return StagedFile{}, err
	}

	sum := sha256.Sum256(data)
	return StagedFile{
		Path:   relPath,
		Ref:    ref,
		SHA256: hex.EncodeToString(sum[:]),
		Bytes:  int64(len(data)),
	}, nil
}

// Resolve reads staged content back by ref.
func (s *Stager) Resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty upload ref")
	}
	data, err := os.ReadFile(filepath.Join(s.stageDir, ref))
	if err != nil {
		return "", fmt.Errorf("resolving upload ref %s: %w", ref, err)
	}
	return string(data), nil
}

// Cleanup removes the staging directory and everything in it.
func (s *Stager) Cleanup() error {
	if err := os.RemoveAll(s.stageDir); err != nil {
		return fmt.Errorf("removing staging directory: %w", err)
	}
	return nil
}

// WriteManifest persists the manifest as indented JSON.
func WriteManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding upload manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing upload manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a persisted manifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading upload manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing upload manifest: %w", err)
	}
	return &m, nil
}
