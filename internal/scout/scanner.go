// Package scout walks a target repository and produces the file inventory
// and project map every later stage works from. It maps everything; the
// surveyor decides what matters. Only known junk directories are collapsed.
package scout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ShayCichocki/glassbox/pkg/models"
)

// InventoryName is the persisted inventory filename.
const InventoryName = "file_inventory.json"

// collapseDirs are directories that never contain source worth mapping.
// The set is deliberately minimal; dot-directories are collapsed too,
// independently of this set. Everything else is mapped and left for the
// surveyor to judge.
var collapseDirs = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	"venv":         true,
	"env":          true,
	"vendor":       true,
}

// binaryExts are extensions that cannot be processed as text.
var binaryExts = map[string]bool{
	".pyc": true, ".pyo": true, ".so": true, ".dll": true, ".exe": true,
	".bin": true, ".o": true, ".a": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".ico": true,
	".svg": true, ".webp": true, ".bmp": true,
	".mp3": true, ".mp4": true, ".wav": true, ".avi": true, ".mov": true,
	".flv": true, ".wmv": true, ".webm": true,
	".zip": true, ".tar": true, ".gz": true, ".rar": true, ".7z": true,
	".bz2": true, ".xz": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true,
	".ttf": true, ".otf": true, ".woff": true, ".woff2": true, ".eot": true,
	".db": true, ".sqlite": true, ".sqlite3": true,
	".jar": true, ".class": true, ".wasm": true,
}

// langByExt maps extensions to language labels for the inventory.
var langByExt = map[string]string{
	".go": "go", ".py": "python", ".js": "javascript", ".jsx": "javascript",
	".ts": "typescript", ".tsx": "typescript", ".rb": "ruby", ".rs": "rust",
	".java": "java", ".kt": "kotlin", ".c": "c", ".h": "c", ".cpp": "cpp",
	".cc": "cpp", ".hpp": "cpp", ".cs": "csharp", ".php": "php",
	".swift": "swift", ".scala": "scala", ".sh": "shell", ".bash": "shell",
	".sql": "sql", ".proto": "protobuf", ".html": "html", ".css": "css",
	".scss": "css", ".json": "json", ".yaml": "yaml", ".yml": "yaml",
	".toml": "toml", ".xml": "xml", ".md": "markdown", ".rst": "markdown",
	".tf": "terraform", ".ex": "elixir", ".exs": "elixir", ".erl": "erlang",
	".lua": "lua", ".r": "r", ".pl": "perl", ".dart": "dart",
}

// Scanner walks a local directory tree and builds the inventory.
type Scanner struct {
	// maxFileBytes is the size cutoff above which a file is tagged noise
	// without reading its content.
	maxFileBytes int64
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// NewScanner creates a scanner with the given oversize cutoff.
func NewScanner(maxFileBytes int64) *Scanner {
	return &Scanner{
		maxFileBytes: maxFileBytes,
		debugLog:     func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (s *Scanner) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		s.debugLog = fn
	}
}

// Scan walks root and returns the inventory plus the human-readable tree
// map. Entries are sorted by path. Binary and oversized files are
// inventoried with role noise so nothing silently disappears.
func (s *Scanner) Scan(root, target string) (*models.FileInventory, *TreeMap, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("scanning target: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("scanning target: %s is not a directory", root)
	}

	inv := &models.FileInventory{Target: target, Root: root}
	tm := newTreeMap()

	if err := s.scanDir(root, root, 0, inv, tm); err != nil {
		return nil, nil, err
	}

	sort.Slice(inv.Entries, func(i, j int) bool {
		return inv.Entries[i].Path < inv.Entries[j].Path
	})

	s.debugLog("[scout.Scan] %d files inventoried (%d binary, %d collapsed dirs)",
		len(inv.Entries), countBinary(inv), tm.collapsed)
	return inv, tm, nil
}

// scanDir maps one directory level: files first, then subdirectories,
// each sorted case-insensitively. Returns an error only for the root;
// unreadable subdirectories are recorded in the map and skipped.
func (s *Scanner) scanDir(dir, root string, depth int, inv *models.FileInventory, tm *TreeMap) error {
	name := filepath.Base(dir)
	if depth > 0 && shouldCollapse(name) {
		tm.addCollapsed(depth, name, countFiles(dir))
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if depth == 0 {
			return fmt.Errorf("reading %s: %w", dir, err)
		}
		tm.addDenied(depth, name)
		return nil
	}

	var files, dirs []os.DirEntry
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e)
		} else if e.Type().IsRegular() {
			files = append(files, e)
		}
	}
	sortEntries(files)
	sortEntries(dirs)

	if depth > 0 {
		tm.addDir(depth, name)
	}

	for _, f := range files {
		full := filepath.Join(dir, f.Name())
		rel, err := filepath.Rel(root, full)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", full, err)
		}
		rel = filepath.ToSlash(rel)

		fi, err := f.Info()
		if err != nil {
			s.debugLog("[scout.Scan] stat %s: %v", rel, err)
			continue
		}

		entry := models.FileInventoryEntry{
			Path: rel,
			Size: fi.Size(),
			Lang: langByExt[strings.ToLower(filepath.Ext(f.Name()))],
		}
		switch {
		case binaryExts[strings.ToLower(filepath.Ext(f.Name()))]:
			entry.Binary = true
			entry.Role = models.RoleNoise
			tm.addFile(depth, f.Name(), markerBinary)
		case s.maxFileBytes > 0 && fi.Size() > s.maxFileBytes:
			entry.Role = models.RoleNoise
			tm.addFile(depth, f.Name(), markerOversize)
		default:
			entry.Lines = countLines(full)
			tm.addFile(depth, f.Name(), "")
		}
		inv.Entries = append(inv.Entries, entry)
	}

	for _, d := range dirs {
		if err := s.scanDir(filepath.Join(dir, d.Name()), root, depth+1, inv, tm); err != nil {
			return err
		}
	}
	return nil
}

// shouldCollapse reports whether a directory is known junk.
func shouldCollapse(name string) bool {
	lower := strings.ToLower(name)
	return collapseDirs[lower] ||
		strings.HasPrefix(name, ".") ||
		strings.HasSuffix(lower, ".egg-info")
}

// sortEntries orders directory entries case-insensitively by name.
func sortEntries(entries []os.DirEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})
}

// countLines counts newline-terminated lines plus any trailing partial
// line. Returns 0 if the file cannot be read.
func countLines(path string) int {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}

// countFiles counts all files under dir recursively, for collapsed-dir
// annotations in the map.
func countFiles(dir string) int {
	count := 0
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			count++
		}
		return nil
	})
	return count
}

func countBinary(inv *models.FileInventory) int {
	n := 0
	for _, e := range inv.Entries {
		if e.Binary {
			n++
		}
	}
	return n
}

// WriteInventory persists the inventory as indented JSON.
func WriteInventory(path string, inv *models.FileInventory) error {
	data, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding inventory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing inventory: %w", err)
	}
	return nil
}

// ReadInventory loads a persisted inventory.
func ReadInventory(path string) (*models.FileInventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}
	var inv models.FileInventory
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parsing inventory: %w", err)
	}
	return &inv, nil
}
