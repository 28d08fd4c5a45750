package database

import "fmt"

// dynamicSchema returns schema DDL using the configured embedding dimension.
// Dates are stored as YYYY-MM-DD text so range filters compare lexically.
func dynamicSchema(embeddingDims int) []string {
	if embeddingDims <= 0 {
		embeddingDims = 4
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS events (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        start_date TEXT,
        emotion TEXT NOT NULL DEFAULT '',
        emotion_intensity REAL NOT NULL DEFAULT 0,
        embedding F32_BLOB(%d),
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`, embeddingDims),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS claims (
        id TEXT PRIMARY KEY,
        content TEXT NOT NULL,
        source TEXT NOT NULL DEFAULT '',
        confidence REAL NOT NULL DEFAULT 0,
        embedding F32_BLOB(%d),
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`, embeddingDims),

		`CREATE TABLE IF NOT EXISTS concepts (
        name TEXT PRIMARY KEY,
        description TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`,

		`CREATE TABLE IF NOT EXISTS concept_relations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        source TEXT NOT NULL,
        target TEXT NOT NULL,
        relation_type TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE (source, target, relation_type),
        FOREIGN KEY (source) REFERENCES concepts(name),
        FOREIGN KEY (target) REFERENCES concepts(name)
    )`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS excerpts (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        path TEXT NOT NULL UNIQUE,
        label TEXT NOT NULL,
        content TEXT NOT NULL,
        embedding F32_BLOB(%d),
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`, embeddingDims),

		`CREATE INDEX IF NOT EXISTS idx_events_start_date ON events(start_date)`,
		`CREATE INDEX IF NOT EXISTS idx_concept_relations_source ON concept_relations(source)`,
		`CREATE INDEX IF NOT EXISTS idx_concept_relations_target ON concept_relations(target)`,
		`CREATE INDEX IF NOT EXISTS idx_excerpts_label ON excerpts(label)`,

		`CREATE INDEX IF NOT EXISTS idx_events_embedding ON events(libsql_vector_idx(embedding))`,
		`CREATE INDEX IF NOT EXISTS idx_claims_embedding ON claims(libsql_vector_idx(embedding))`,
		`CREATE INDEX IF NOT EXISTS idx_excerpts_embedding ON excerpts(libsql_vector_idx(embedding))`,
	}
}
