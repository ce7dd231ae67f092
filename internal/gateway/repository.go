package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines gateway persistence operations.
// The registry itself is in-memory; a Repository lets the composition
// root reload known gateways across restarts and keep the stored set in
// sync with registry events.
type Repository interface {
	// List retrieves all persisted gateways.
	List(ctx context.Context) ([]Gateway, error)

	// Get retrieves a gateway by ID.
	// Returns ErrNotFound if the gateway does not exist.
	Get(ctx context.Context, id string) (*Gateway, error)

	// Save inserts or replaces a gateway.
	Save(ctx context.Context, gw *Gateway) error

	// Delete removes a gateway by ID. Deleting an unknown ID is a no-op.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the
// gateways table migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List retrieves all persisted gateways ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Gateway, error) {
	query := `
		SELECT id, floor_id, name, mac_address, ip_address, status,
			last_seen, created_at, cloud_data
		FROM gateways
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing gateways: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var gateways []Gateway
	for rows.Next() {
		gw, scanErr := scanGateway(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		gateways = append(gateways, *gw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gateways: %w", err)
	}
	return gateways, nil
}

// Get retrieves a gateway by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Gateway, error) {
	query := `
		SELECT id, floor_id, name, mac_address, ip_address, status,
			last_seen, created_at, cloud_data
		FROM gateways
		WHERE id = ?`

	gw, err := scanGateway(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return gw, nil
}

// Save inserts or replaces a gateway.
func (r *SQLiteRepository) Save(ctx context.Context, gw *Gateway) error {
	if gw == nil || gw.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidGateway)
	}

	var cloudJSON []byte
	if gw.Cloud != nil {
		var err error
		cloudJSON, err = json.Marshal(gw.Cloud)
		if err != nil {
			return fmt.Errorf("marshalling cloud data: %w", err)
		}
	}

	var lastSeen sql.NullString
	if gw.LastSeen != nil {
		lastSeen = sql.NullString{String: gw.LastSeen.UTC().Format(time.RFC3339), Valid: true}
	}

	query := `
		INSERT INTO gateways (id, floor_id, name, mac_address, ip_address,
			status, last_seen, created_at, cloud_data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			floor_id = excluded.floor_id,
			name = excluded.name,
			mac_address = excluded.mac_address,
			ip_address = excluded.ip_address,
			status = excluded.status,
			last_seen = excluded.last_seen,
			cloud_data = excluded.cloud_data,
			updated_at = excluded.updated_at`

	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := gw.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, query,
		gw.ID,
		nullString(gw.FloorID),
		gw.Name,
		nullString(gw.MACAddress),
		nullString(gw.IPAddress),
		string(gw.Status),
		lastSeen,
		createdAt.UTC().Format(time.RFC3339),
		nullBytes(cloudJSON),
		now,
	)
	if err != nil {
		return fmt.Errorf("saving gateway %s: %w", gw.ID, err)
	}
	return nil
}

// Delete removes a gateway by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM gateways WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting gateway %s: %w", id, err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanGateway.
type scanner interface {
	Scan(dest ...any) error
}

// scanGateway reads one gateway row.
func scanGateway(row scanner) (*Gateway, error) {
	var (
		gw        Gateway
		floorID   sql.NullString
		mac       sql.NullString
		ip        sql.NullString
		status    string
		lastSeen  sql.NullString
		createdAt string
		cloudJSON sql.NullString
	)

	err := row.Scan(&gw.ID, &floorID, &gw.Name, &mac, &ip, &status,
		&lastSeen, &createdAt, &cloudJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning gateway: %w", err)
	}

	gw.FloorID = floorID.String
	gw.MACAddress = mac.String
	gw.IPAddress = ip.String
	gw.Status = Status(status)

	if lastSeen.Valid && lastSeen.String != "" {
		ts, parseErr := time.Parse(time.RFC3339, lastSeen.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing last_seen for %s: %w", gw.ID, parseErr)
		}
		gw.LastSeen = &ts
	}

	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at for %s: %w", gw.ID, err)
	}
	gw.CreatedAt = ts

	if cloudJSON.Valid && cloudJSON.String != "" {
		var cloud CloudData
		if err := json.Unmarshal([]byte(cloudJSON.String), &cloud); err != nil {
			return nil, fmt.Errorf("parsing cloud_data for %s: %w", gw.ID, err)
		}
		gw.Cloud = &cloud
	}

	return &gw, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) sql.NullString {
	return sql.NullString{String: string(b), Valid: len(b) > 0}
}
