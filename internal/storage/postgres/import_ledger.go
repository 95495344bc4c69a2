package postgres

import (
	"context"
	"fmt"

	"prilythic/internal/storage"
)

// ImportLedger implements storage.ImportLedger using PostgreSQL.
type ImportLedger struct {
	pool *Pool
}

// NewImportLedger creates a new ImportLedger.
func NewImportLedger(pool *Pool) *ImportLedger {
	return &ImportLedger{pool: pool}
}

// Compile-time interface check.
var _ storage.ImportLedger = (*ImportLedger)(nil)

// IsImported reports whether a panel checksum has been recorded.
func (l *ImportLedger) IsImported(ctx context.Context, checksum string) (bool, error) {
	if checksum == "" {
		return false, storage.ErrInvalidInput
	}

	var exists bool
	err := l.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM panel_imports WHERE checksum = $1)`, checksum,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check panel import: %w", err)
	}
	return exists, nil
}

// MarkImported records an import. Returns ErrDuplicateKey if checksum exists.
func (l *ImportLedger) MarkImported(ctx context.Context, imp *storage.PanelImport) error {
	if imp == nil || imp.Checksum == "" {
		return storage.ErrInvalidInput
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO panel_imports (checksum, source, points, imported_at)
		VALUES ($1, $2, $3, $4)
	`, imp.Checksum, imp.Source, imp.Points, imp.ImportedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert panel import: %w", err)
	}
	return nil
}

// List returns all imports, oldest first.
func (l *ImportLedger) List(ctx context.Context) ([]*storage.PanelImport, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT checksum, source, points, imported_at
		FROM panel_imports
		ORDER BY imported_at, checksum
	`)
	if err != nil {
		return nil, fmt.Errorf("list panel imports: %w", err)
	}
	defer rows.Close()

	var imports []*storage.PanelImport
	for rows.Next() {
		var imp storage.PanelImport
		if err := rows.Scan(&imp.Checksum, &imp.Source, &imp.Points, &imp.ImportedAt); err != nil {
			return nil, fmt.Errorf("scan panel import: %w", err)
		}
		imports = append(imports, &imp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate panel imports: %w", err)
	}
	return imports, nil
}
