package models

// Role classifies what a file contributes to the target codebase.
// The surveyor assigns one role per inventory entry; files tagged
// RoleTest, RoleDoc, or RoleNoise are excluded from distillation.
type Role string

const (
	// RoleRoute marks HTTP/RPC routing and handler wiring.
	RoleRoute Role = "route"
	// RoleModel marks data model / entity definitions.
	RoleModel Role = "model"
	// RoleService marks business logic and orchestration code.
	RoleService Role = "service"
	// RoleConfig marks configuration files and loaders.
	RoleConfig Role = "config"
	// RoleSchema marks wire/storage schema definitions (SQL, proto, OpenAPI).
	RoleSchema Role = "schema"
	// RoleEntry marks executable entry points.
	RoleEntry Role = "entry"
	// RoleTest marks test code.
	RoleTest Role = "test"
	// RoleDoc marks documentation.
	RoleDoc Role = "doc"
	// RoleNoise marks files with no architectural signal (assets, locks,
	// generated output, binaries).
	RoleNoise Role = "noise"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleRoute, RoleModel, RoleService, RoleConfig, RoleSchema,
		RoleEntry, RoleTest, RoleDoc, RoleNoise:
		return true
	default:
		return false
	}
}

// AllRoles lists every assignable role, in the order presented to the LLM.
func AllRoles() []Role {
	return []Role{
		RoleRoute, RoleModel, RoleService, RoleConfig, RoleSchema,
		RoleEntry, RoleTest, RoleDoc, RoleNoise,
	}
}

// Selected reports whether a file with this role participates in
// distillation.
func (r Role) Selected() bool {
	switch r {
	case RoleTest, RoleDoc, RoleNoise:
		return false
	default:
		return true
	}
}

// FileInventoryEntry describes one scouted file. Entries are immutable once
// written except for the Role field, which the surveyor fills in, and the
// Ref field, which the uploader fills in.
type FileInventoryEntry struct {
	// Path is the file path relative to the target root.
	Path string `json:"path"`
	// Size is the file size in bytes.
	Size int64 `json:"size"`
	// Lines is the line count (0 for binary files).
	Lines int `json:"lines"`
	// Lang is the detected language, by extension.
	Lang string `json:"lang,omitempty"`
	// Binary marks files scout identified as non-text.
	Binary bool `json:"binary,omitempty"`
	// Role is the surveyor's classification.
	Role Role `json:"role,omitempty"`
	// Ref is the opaque upload reference, once staged.
	Ref string `json:"ref,omitempty"`
}

// FileInventory is the persisted scout output (file_inventory.json).
type FileInventory struct {
	// Target is the repository locator the run was started with.
	Target string `json:"target"`
	// Root is the local directory the inventory was taken from.
	Root string `json:"root"`
	// Entries lists every inventoried file, sorted by path.
	Entries []FileInventoryEntry `json:"entries"`
}

// Selected returns the entries that participate in distillation,
// preserving inventory order.
func (inv *FileInventory) Selected() []FileInventoryEntry {
	var out []FileInventoryEntry
	for _, e := range inv.Entries {
		if !e.Binary && e.Role.Selected() {
			out = append(out, e)
		}
	}
	return out
}

// Entry returns the entry for path, or nil if absent.
func (inv *FileInventory) Entry(path string) *FileInventoryEntry {
	for i := range inv.Entries {
		if inv.Entries[i].Path == path {
			return &inv.Entries[i]
		}
	}
	return nil
}
