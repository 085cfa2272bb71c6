package survey

import (
	"path"
	"strings"

	"github.com/ShayCichocki/glassbox/pkg/models"
)

// lockNames are dependency lockfiles: pure noise for architecture work.
var lockNames = map[string]bool{
	"go.sum":            true,
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"poetry.lock":       true,
	"pipfile.lock":      true,
	"cargo.lock":        true,
	"gemfile.lock":      true,
	"composer.lock":     true,
}

// configNames are build/config files recognizable by name alone.
var configNames = map[string]bool{
	"go.mod":              true,
	"package.json":        true,
	"tsconfig.json":       true,
	"pyproject.toml":      true,
	"setup.py":            true,
	"setup.cfg":           true,
	"requirements.txt":    true,
	"pipfile":             true,
	"gemfile":             true,
	"cargo.toml":          true,
	"build.gradle":        true,
	"pom.xml":             true,
	"makefile":            true,
	"dockerfile":          true,
	"docker-compose.yml":  true,
	"docker-compose.yaml": true,
}

// docNames are documentation files without a telling extension.
var docNames = map[string]bool{
	"license":      true,
	"licence":      true,
	"notice":       true,
	"authors":      true,
	"contributors": true,
	"changelog":    true,
	"readme":       true,
}

var docExts = map[string]bool{
	".md": true, ".rst": true, ".txt": true, ".adoc": true,
}

var schemaExts = map[string]bool{
	".sql": true, ".proto": true, ".graphql": true, ".gql": true,
	".avsc": true, ".avdl": true,
}

var configExts = map[string]bool{
	".ini": true, ".cfg": true, ".conf": true, ".properties": true,
	".env": true,
}

var entryNames = map[string]bool{
	"main.go":   true,
	"main.py":   true,
	"main.rs":   true,
	"app.py":    true,
	"manage.py": true,
	"wsgi.py":   true,
	"asgi.py":   true,
	"index.js":  true,
	"index.ts":  true,
	"server.js": true,
}

// codeLangs are languages whose files default to service code when the
// surveyor has to fall back to heuristics alone.
var codeLangs = map[string]bool{
	"go": true, "python": true, "javascript": true, "typescript": true,
	"ruby": true, "rust": true, "java": true, "kotlin": true, "c": true,
	"cpp": true, "csharp": true, "php": true, "swift": true, "scala": true,
	"elixir": true, "erlang": true, "lua": true, "perl": true, "dart": true,
	"r": true,
}

// HeuristicRole tags the obvious cases without an LLM call. The second
// return is false when the file needs model judgment.
func HeuristicRole(e models.FileInventoryEntry) (models.Role, bool) {
	if e.Binary || e.Role == models.RoleNoise {
		return models.RoleNoise, true
	}

	base := strings.ToLower(path.Base(e.Path))
	ext := strings.ToLower(path.Ext(e.Path))
	stem := strings.TrimSuffix(base, ext)

	switch {
	case lockNames[base]:
		return models.RoleNoise, true
	case isTestPath(e.Path, base):
		return models.RoleTest, true
	case docExts[ext], docNames[stem], underDir(e.Path, "docs", "doc"):
		return models.RoleDoc, true
	case schemaExts[ext],
		strings.HasPrefix(base, "openapi."),
		strings.HasPrefix(base, "swagger."):
		return models.RoleSchema, true
	case configNames[base], configExts[ext], strings.HasPrefix(base, "."):
		return models.RoleConfig, true
	case entryNames[base]:
		return models.RoleEntry, true
	}
	return "", false
}

// FallbackRole is the heuristic-only tag for files whose survey chunk
// exhausted retries. Coarse on purpose: code defaults to service.
func FallbackRole(e models.FileInventoryEntry) models.Role {
	if role, ok := HeuristicRole(e); ok {
		return role
	}
	switch {
	case codeLangs[e.Lang]:
		return models.RoleService
	case e.Lang == "json", e.Lang == "yaml", e.Lang == "toml", e.Lang == "xml":
		return models.RoleConfig
	}
	return models.RoleNoise
}

// isTestPath matches the usual test layouts: Go _test files, pytest
// test_* modules, JS .spec/.test files, and dedicated test directories.
func isTestPath(relPath, base string) bool {
	if strings.Contains(base, "_test.") || strings.HasPrefix(base, "test_") ||
		strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") {
		return true
	}
	return underDir(relPath, "test", "tests", "__tests__", "spec", "testdata")
}

// underDir reports whether any path segment (except the final file name)
// matches one of names, case-insensitively.
func underDir(relPath string, names ...string) bool {
	segments := strings.Split(relPath, "/")
	if len(segments) < 2 {
		return false
	}
	for _, seg := range segments[:len(segments)-1] {
		lower := strings.ToLower(seg)
		for _, n := range names {
			if lower == n {
				return true
			}
		}
	}
	return false
}
