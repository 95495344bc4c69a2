package memory

import (
	"context"
	"sort"
	"sync"

	"prilythic/internal/storage"
)

// ImportLedger is an in-memory implementation of storage.ImportLedger.
type ImportLedger struct {
	mu      sync.RWMutex
	imports map[string]*storage.PanelImport // keyed by checksum
}

// NewImportLedger creates a new in-memory import ledger.
func NewImportLedger() *ImportLedger {
	return &ImportLedger{
		imports: make(map[string]*storage.PanelImport),
	}
}

// IsImported reports whether a panel checksum has been recorded.
func (l *ImportLedger) IsImported(_ context.Context, checksum string) (bool, error) {
	if checksum == "" {
		return false, storage.ErrInvalidInput
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.imports[checksum]
	return ok, nil
}

// MarkImported records an import. Returns ErrDuplicateKey if checksum exists.
func (l *ImportLedger) MarkImported(_ context.Context, imp *storage.PanelImport) error {
	if imp == nil || imp.Checksum == "" {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.imports[imp.Checksum]; exists {
		return storage.ErrDuplicateKey
	}
	c := *imp
	l.imports[imp.Checksum] = &c
	return nil
}

// List returns all imports, oldest first.
func (l *ImportLedger) List(_ context.Context) ([]*storage.PanelImport, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*storage.PanelImport, 0, len(l.imports))
	for _, imp := range l.imports {
		c := *imp
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ImportedAt != result[j].ImportedAt {
			return result[i].ImportedAt < result[j].ImportedAt
		}
		return result[i].Checksum < result[j].Checksum
	})
	return result, nil
}

var _ storage.ImportLedger = (*ImportLedger)(nil)
