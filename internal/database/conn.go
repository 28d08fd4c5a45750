package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/embeddings"
	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/metrics"
)

const defaultProject = "default"

// DBManager owns one libSQL handle per project and serves the graph query
// layer (events, claims, concepts) plus the excerpt table.
type DBManager struct {
	config   *Config
	provider embeddings.Provider

	mu  sync.RWMutex
	dbs map[string]*sql.DB

	stmtMu    sync.RWMutex
	stmtCache map[string]map[string]*sql.Stmt

	capMu         sync.RWMutex
	capsByProject map[string]capFlags
}

// NewDBManager creates a new database manager. provider may be nil; it is
// only used to embed rows upserted without a vector.
func NewDBManager(config *Config, provider embeddings.Provider) (*DBManager, error) {
	if config.EmbeddingDims <= 0 || config.EmbeddingDims > 65536 {
		return nil, fmt.Errorf("{\"error\":{\"code\":\"INVALID_EMBEDDING_DIMS\",\"message\":\"EMBEDDING_DIMS must be between 1 and 65536 inclusive\",\"value\":%d}}", config.EmbeddingDims)
	}
	manager := &DBManager{
		config:        config,
		provider:      provider,
		dbs:           make(map[string]*sql.DB),
		stmtCache:     make(map[string]map[string]*sql.Stmt),
		capsByProject: make(map[string]capFlags),
	}
	if provider != nil && provider.Dimensions() != config.EmbeddingDims {
		manager.provider = embeddings.WrapToDims(provider, config.EmbeddingDims, config.EmbeddingsAdaptMode)
	}

	// If not in multi-project mode, initialize the default database immediately
	if !config.MultiProjectMode {
		if _, err := manager.getDB(defaultProject); err != nil {
			return nil, fmt.Errorf("failed to initialize default database: %w", err)
		}
	}

	return manager, nil
}

// EmbeddingDims reports the vector size of the schema.
func (dm *DBManager) EmbeddingDims() int { return dm.config.EmbeddingDims }

// MultiProject reports whether each project gets its own database file.
func (dm *DBManager) MultiProject() bool { return dm.config.MultiProjectMode }

// resolveProject maps empty names onto the default project in single-DB mode.
func (dm *DBManager) resolveProject(projectName string) string {
	if !dm.config.MultiProjectMode {
		return defaultProject
	}
	return projectName
}

// getDB retrieves a database connection for a given project, creating it if necessary
func (dm *DBManager) getDB(projectName string) (*sql.DB, error) {
	projectName = dm.resolveProject(projectName)
	dm.mu.RLock()
	db, ok := dm.dbs[projectName]
	dm.mu.RUnlock()
	if ok {
		return db, nil
	}

	dm.mu.Lock()
	// Double-check if another goroutine created the DB while we were waiting for the lock
	if db, ok = dm.dbs[projectName]; ok {
		dm.mu.Unlock()
		return db, nil
	}

	dbURL := dm.config.URL
	if dm.config.MultiProjectMode {
		if projectName == "" {
			dm.mu.Unlock()
			return nil, fmt.Errorf("project name cannot be empty in multi-project mode")
		}
		dbPath := filepath.Join(dm.config.ProjectsDir, projectName, "libsql.db")
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			dm.mu.Unlock()
			return nil, fmt.Errorf("failed to create project directory for %s: %w", projectName, err)
		}
		dbURL = fmt.Sprintf("file:%s", dbPath)
	}

	newDb, err := sql.Open("libsql", dm.connectionURL(dbURL))
	if err != nil {
		dm.mu.Unlock()
		return nil, fmt.Errorf("failed to create database connector for project %s: %w", projectName, err)
	}

	if err := dm.initialize(newDb); err != nil {
		newDb.Close()
		dm.mu.Unlock()
		return nil, fmt.Errorf("failed to initialize database for project %s: %w", projectName, err)
	}

	if dm.config.MaxOpenConns > 0 {
		newDb.SetMaxOpenConns(dm.config.MaxOpenConns)
	}
	if dm.config.MaxIdleConns > 0 {
		newDb.SetMaxIdleConns(dm.config.MaxIdleConns)
	}
	if dm.config.ConnMaxIdleSec > 0 {
		newDb.SetConnMaxIdleTime(time.Duration(dm.config.ConnMaxIdleSec) * time.Second)
	}
	if dm.config.ConnMaxLifeSec > 0 {
		newDb.SetConnMaxLifetime(time.Duration(dm.config.ConnMaxLifeSec) * time.Second)
	}

	dm.dbs[projectName] = newDb
	dm.stmtMu.Lock()
	if _, ok := dm.stmtCache[projectName]; !ok {
		dm.stmtCache[projectName] = make(map[string]*sql.Stmt)
	}
	dm.stmtMu.Unlock()
	// Unlock before capability detection to avoid self-deadlock
	dm.mu.Unlock()

	// An existing file may predate a change of EMBEDDING_DIMS; the stored
	// schema wins.
	if dbDims := detectDBEmbeddingDims(newDb); dbDims > 0 && dbDims != dm.config.EmbeddingDims {
		log.Warn().Int("db_dims", dbDims).Int("config_dims", dm.config.EmbeddingDims).
			Msg("embedding dims mismatch, adopting database dims")
		dm.config.EmbeddingDims = dbDims
		if dm.provider != nil && dm.provider.Dimensions() != dbDims {
			dm.provider = embeddings.WrapToDims(dm.provider, dbDims, dm.config.EmbeddingsAdaptMode)
		}
	}

	dm.detectCapabilitiesForProject(context.Background(), projectName, newDb)
	stats := newDb.Stats()
	metrics.Default().ObservePoolStats(stats.InUse, stats.Idle)
	return newDb, nil
}

// connectionURL appends the auth token for remote databases.
func (dm *DBManager) connectionURL(dbURL string) string {
	if strings.HasPrefix(dbURL, "file:") || dm.config.AuthToken == "" {
		return dbURL
	}
	u, err := url.Parse(dbURL)
	if err != nil {
		sep := "?"
		if strings.Contains(dbURL, "?") {
			sep = "&"
		}
		return dbURL + sep + "authToken=" + url.QueryEscape(dm.config.AuthToken)
	}
	q := u.Query()
	q.Set("authToken", dm.config.AuthToken)
	u.RawQuery = q.Encode()
	return u.String()
}

// detectDBEmbeddingDims reads F32_BLOB(n) from the events DDL, falling back
// to the size of a stored vector.
func detectDBEmbeddingDims(db *sql.DB) int {
	var sqlText string
	_ = db.QueryRow("SELECT sql FROM sqlite_master WHERE type='table' AND name='events'").Scan(&sqlText)
	low := strings.ToLower(sqlText)
	if idx := strings.Index(low, "f32_blob("); idx >= 0 {
		rest := low[idx+len("f32_blob("):]
		if end := strings.Index(rest, ")"); end > 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(rest[:end])); err == nil && n > 0 {
				return n
			}
		}
	}
	var blob []byte
	_ = db.QueryRow("SELECT embedding FROM events WHERE embedding IS NOT NULL LIMIT 1").Scan(&blob)
	if len(blob) > 0 && len(blob)%4 == 0 {
		return len(blob) / 4
	}
	return 0
}

// initialize creates tables and indexes if they don't exist
func (dm *DBManager) initialize(db *sql.DB) error {
	done := metrics.TimeOp("db_initialize")
	success := false
	defer func() { done(success) }()
	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for initialization: %w", err)
	}
	defer tx.Rollback()

	for _, statement := range dynamicSchema(dm.config.EmbeddingDims) {
		if _, err := tx.Exec(statement); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	success = true
	return nil
}

// Ping checks connectivity of the project database.
func (dm *DBManager) Ping(ctx context.Context, projectName string) error {
	db, err := dm.getDB(projectName)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Close closes cached statements and all database connections.
func (dm *DBManager) Close() error {
	dm.stmtMu.Lock()
	for _, stmts := range dm.stmtCache {
		for _, stmt := range stmts {
			_ = stmt.Close()
		}
	}
	dm.stmtCache = make(map[string]map[string]*sql.Stmt)
	dm.stmtMu.Unlock()

	dm.mu.Lock()
	defer dm.mu.Unlock()
	var errs []error
	for name, db := range dm.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database for project %s: %w", name, err))
		}
	}
	dm.dbs = make(map[string]*sql.DB)
	return errors.Join(errs...)
}

// PoolStats sums in-use and idle connections across open projects.
func (dm *DBManager) PoolStats() (inUse, idle int) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for _, db := range dm.dbs {
		s := db.Stats()
		inUse += s.InUse
		idle += s.Idle
	}
	return inUse, idle
}
