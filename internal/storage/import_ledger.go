package storage

import "context"

// PanelImport records a panel file that was loaded into the price point store.
type PanelImport struct {
	Checksum   string // sha256 of the panel file contents
	Source     string // path or name the panel was read from
	Points     int    // price points stored
	ImportedAt int64  // ms
}

// ImportLedger remembers which panels were imported, so loading the same panel
// again does not duplicate its price points.
type ImportLedger interface {
	// IsImported reports whether a panel with checksum was already imported.
	IsImported(ctx context.Context, checksum string) (bool, error)

	// MarkImported records an import. Returns ErrDuplicateKey if checksum exists.
	MarkImported(ctx context.Context, imp *PanelImport) error

	// List returns all imports, oldest first.
	List(ctx context.Context) ([]*PanelImport, error)
}
