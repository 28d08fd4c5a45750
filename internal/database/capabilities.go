package database

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// capFlags stores capability detection for a specific project/DB handle
type capFlags struct {
	checked    bool
	vectorTopK bool
}

// detectCapabilitiesForProject probes for vector_top_k (ANN index search).
// Without it, excerpt search falls back to a full scan.
func (dm *DBManager) detectCapabilitiesForProject(ctx context.Context, projectName string, db *sql.DB) {
	dm.capMu.RLock()
	caps, ok := dm.capsByProject[projectName]
	dm.capMu.RUnlock()
	if ok && caps.checked {
		return
	}

	// Skip ANN probe for in-memory test URLs to avoid driver quirks
	if strings.Contains(dm.config.URL, "mode=memory") {
		dm.setCaps(projectName, capFlags{checked: true})
		return
	}
	ctx2, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	rows, err := db.QueryContext(ctx2, "SELECT id FROM vector_top_k('idx_excerpts_embedding', vector32(?), 1) LIMIT 1", dm.vectorZeroString())
	if rows != nil {
		rows.Close()
	}
	dm.setCaps(projectName, capFlags{checked: true, vectorTopK: err == nil})
}

func (dm *DBManager) caps(projectName string) capFlags {
	dm.capMu.RLock()
	defer dm.capMu.RUnlock()
	return dm.capsByProject[dm.resolveProject(projectName)]
}

func (dm *DBManager) setCaps(projectName string, c capFlags) {
	dm.capMu.Lock()
	dm.capsByProject[projectName] = c
	dm.capMu.Unlock()
}
