package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/intersection-view/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

// ReplaceRoadsWithTx swaps the whole snapshot for roads and stamps it with savedAt.
func ReplaceRoadsWithTx(tx *sql.Tx, roads []model.Road, savedAt time.Time) error {
	if _, err := tx.Exec(`DELETE FROM devices`); err != nil {
		return fmt.Errorf("clear devices: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM roads`); err != nil {
		return fmt.Errorf("clear roads: %w", err)
	}

	for _, r := range roads {
		_, err := tx.Exec(`INSERT INTO roads (id, name, location, district, city, status, mode) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Name, r.Location, r.District, r.City, r.Status, string(r.Mode))
		if err != nil {
			return fmt.Errorf("insert road %d: %w", r.ID, err)
		}
		for i, d := range r.Devices {
			_, err = tx.Exec(`INSERT INTO devices (road_id, position, device_id, name, device_type, direction_from, direction_to, status) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				r.ID, i, d.DeviceID, d.Name, string(d.Type), string(d.DirectionFrom), string(d.DirectionTo), d.Status)
			if err != nil {
				return fmt.Errorf("insert device %s of road %d: %w", d.DeviceID, r.ID, err)
			}
		}
	}

	_, err := tx.Exec(`INSERT OR REPLACE INTO snapshot (id, saved_at) VALUES (1, ?)`, savedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("stamp snapshot: %w", err)
	}
	return nil
}

func ReplaceRoads(db *sql.DB, roads []model.Road) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	if err := ReplaceRoadsWithTx(tx, roads, time.Now()); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}

// UpdateRoadModeWithTx records the last known mode of a cached road.
func UpdateRoadModeWithTx(tx *sql.Tx, id int, mode model.Mode) error {
	res, err := tx.Exec(`UPDATE roads SET mode = ? WHERE id = ?`, string(mode), id)
	if err != nil {
		return fmt.Errorf("update road mode: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update road mode: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update road mode: road %d: %w", id, sql.ErrNoRows)
	}
	return nil
}
