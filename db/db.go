// Package db persists selection history in PostgreSQL. The pipeline core is
// stateless; this store exists for the API layer only.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/zombar/imagefinder/models"
)

// DB wraps the database connection and provides data access methods
type DB struct {
	conn *sql.DB
}

// Config contains database configuration
type Config struct {
	DSN string // PostgreSQL connection string
}

// New creates a new database connection
func New(config Config) (*DB, error) {
	conn, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn}

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// DB returns the underlying database connection for metrics collection
func (db *DB) DB() *sql.DB {
	return db.conn
}

// SaveSelection saves a selection outcome
func (db *DB) SaveSelection(rec *models.SelectionRecord) error {
	query := `
		INSERT INTO imagefinder_selections
			(id, product_name, slug, source_url, found, image_url, validated,
			 score, width, height, format, archive_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := db.conn.Exec(
		query,
		rec.ID,
		rec.ProductName,
		rec.Slug,
		rec.SourceURL,
		rec.Found,
		rec.ImageURL,
		rec.Validated,
		rec.Score,
		rec.Width,
		rec.Height,
		rec.Format,
		rec.ArchivePath,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save selection: %w", err)
	}

	return nil
}

const selectionColumns = `
	id, product_name, slug, COALESCE(source_url, ''), found,
	COALESCE(image_url, ''), validated, COALESCE(score, 0),
	COALESCE(width, 0), COALESCE(height, 0), COALESCE(format, ''),
	COALESCE(archive_path, ''), created_at
`

// scanSelection scans one selection row
func scanSelection(row interface{ Scan(...interface{}) error }) (*models.SelectionRecord, error) {
	var rec models.SelectionRecord
	err := row.Scan(
		&rec.ID,
		&rec.ProductName,
		&rec.Slug,
		&rec.SourceURL,
		&rec.Found,
		&rec.ImageURL,
		&rec.Validated,
		&rec.Score,
		&rec.Width,
		&rec.Height,
		&rec.Format,
		&rec.ArchivePath,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByID retrieves a selection by ID, nil when absent
func (db *DB) GetByID(id string) (*models.SelectionRecord, error) {
	row := db.conn.QueryRow(
		"SELECT "+selectionColumns+" FROM imagefinder_selections WHERE id = $1", id)

	rec, err := scanSelection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get selection: %w", err)
	}
	return rec, nil
}

// GetLatestBySlug retrieves the most recent selection for a product slug,
// nil when absent
func (db *DB) GetLatestBySlug(slug string) (*models.SelectionRecord, error) {
	row := db.conn.QueryRow(
		"SELECT "+selectionColumns+" FROM imagefinder_selections WHERE slug = $1 ORDER BY created_at DESC LIMIT 1",
		slug)

	rec, err := scanSelection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get selection by slug: %w", err)
	}
	return rec, nil
}

// List retrieves selections ordered newest first
func (db *DB) List(limit, offset int) ([]*models.SelectionRecord, error) {
	rows, err := db.conn.Query(
		"SELECT "+selectionColumns+" FROM imagefinder_selections ORDER BY created_at DESC LIMIT $1 OFFSET $2",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list selections: %w", err)
	}
	defer rows.Close()

	var records []*models.SelectionRecord
	for rows.Next() {
		rec, err := scanSelection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan selection: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Count returns the total number of stored selections
func (db *DB) Count() (int, error) {
	var count int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM imagefinder_selections").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count selections: %w", err)
	}
	return count, nil
}

// DeleteByID deletes a selection by ID
func (db *DB) DeleteByID(id string) error {
	result, err := db.conn.Exec("DELETE FROM imagefinder_selections WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete selection: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no selection found with id %s", id)
	}

	return nil
}
