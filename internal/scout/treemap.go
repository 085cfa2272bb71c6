package scout

import (
	"fmt"
	"os"
	"strings"
)

// MapName is the persisted project map filename.
const MapName = "project_map.txt"

const (
	markerBinary   = "[BINARY]"
	markerOversize = "[OVERSIZE]"
)

// TreeMap accumulates the human-readable project map, one line per file
// or directory, indented two spaces per depth level.
type TreeMap struct {
	lines     []string
	collapsed int
}

func newTreeMap() *TreeMap {
	return &TreeMap{}
}

func (t *TreeMap) addDir(depth int, name string) {
	t.lines = append(t.lines, indent(depth)+name+"/")
}

func (t *TreeMap) addFile(depth int, name, marker string) {
	line := indent(depth) + "  " + name
	if marker != "" {
		line += " " + marker
	}
	t.lines = append(t.lines, line)
}

func (t *TreeMap) addCollapsed(depth int, name string, fileCount int) {
	t.collapsed++
	t.lines = append(t.lines, fmt.Sprintf("%s[DIR: %s - %d files]", indent(depth), name, fileCount))
}

func (t *TreeMap) addDenied(depth int, name string) {
	t.lines = append(t.lines, fmt.Sprintf("%s[DIR: %s - ACCESS DENIED]", indent(depth), name))
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}

// String renders the map as newline-joined text.
func (t *TreeMap) String() string {
	return strings.Join(t.lines, "\n")
}

// CollapsedDirs reports how many junk directories were collapsed.
func (t *TreeMap) CollapsedDirs() int {
	return t.collapsed
}

// WriteMap persists the map to path.
func WriteMap(path string, tm *TreeMap) error {
	if err := os.WriteFile(path, []byte(tm.String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing project map: %w", err)
	}
	return nil
}
