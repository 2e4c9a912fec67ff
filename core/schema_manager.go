package core

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"
)

//go:embed sql/*.sql
var schemaFiles embed.FS

// coreTables are the tables every storage backend must provide
var coreTables = []string{
	"accounts",
	"sessions",
	"audit_events",
	"blacklist_entries",
	"verification_codes",
	"password_resets",
}

// SchemaManager handles schema creation and validation
type SchemaManager struct {
	db     *sql.DB
	dbType string // "sqlite" or "postgres"
}

// NewSchemaManager creates a new schema manager
func NewSchemaManager(db *sql.DB, dbType string) *SchemaManager {
	return &SchemaManager{
		db:     db,
		dbType: dbType,
	}
}

// EnsureCoreSchema creates any missing core tables. Existing tables are left untouched.
func (sm *SchemaManager) EnsureCoreSchema() error {
	missing, err := sm.missingTables()
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		slog.Debug("Core schema present", "database_type", sm.dbType)
		return nil
	}

	slog.Info("Creating missing core tables", "database_type", sm.dbType, "tables", missing)
	if err := sm.ExecuteCoreSchema(); err != nil {
		return err
	}
	return sm.ValidateSchema()
}

// ExecuteCoreSchema executes the core schema SQL to create tables
func (sm *SchemaManager) ExecuteCoreSchema() error {
	var schemaFile string

	switch sm.dbType {
	case "sqlite":
		schemaFile = "sql/sqlite_core.sql"
	case "postgres":
		schemaFile = "sql/postgres_core.sql"
	default:
		return fmt.Errorf("unsupported database type: %s", sm.dbType)
	}

	schemaSQL, err := schemaFiles.ReadFile(schemaFile)
	if err != nil {
		return fmt.Errorf("failed to read schema file %s: %w", schemaFile, err)
	}

	if _, err := sm.db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute core schema: %w", err)
	}

	return nil
}

// tableExists checks if a table exists in the database
func (sm *SchemaManager) tableExists(tableName string) (bool, error) {
	var query string

	switch sm.dbType {
	case "sqlite":
		query = `SELECT name FROM sqlite_master WHERE type='table' AND name = ?`
	case "postgres":
		query = `SELECT table_name FROM information_schema.tables
		         WHERE table_schema = current_schema() AND table_name = $1`
	default:
		return false, fmt.Errorf("unsupported database type: %s", sm.dbType)
	}

	var foundTable string
	err := sm.db.QueryRow(query, tableName).Scan(&foundTable)

	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, err
	}

	return foundTable == tableName, nil
}

func (sm *SchemaManager) missingTables() ([]string, error) {
	var missing []string
	for _, tableName := range coreTables {
		exists, err := sm.tableExists(tableName)
		if err != nil {
			return nil, fmt.Errorf("failed to check if table %s exists: %w", tableName, err)
		}
		if !exists {
			missing = append(missing, tableName)
		}
	}
	return missing, nil
}

// ValidateSchema performs basic schema validation
func (sm *SchemaManager) ValidateSchema() error {
	missing, err := sm.missingTables()
	if err != nil {
		return err
	}

	if len(missing) > 0 {
		return fmt.Errorf("schema validation failed: missing tables %s", strings.Join(missing, ", "))
	}

	slog.Debug("Schema validation passed", "database_type", sm.dbType)
	return nil
}
