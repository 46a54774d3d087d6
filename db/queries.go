package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thatsimonsguy/intersection-view/internal/model"
)

var ErrNoSnapshot = errors.New("no registry snapshot saved")

// GetRoads retrieves every cached road with its devices, ordered by road id.
func GetRoads(db *sql.DB) ([]model.Road, error) {
	rows, err := db.Query(`SELECT id, name, location, district, city, status, mode FROM roads ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query roads: %w", err)
	}
	defer rows.Close()

	var roads []model.Road
	for rows.Next() {
		var r model.Road
		err = rows.Scan(&r.ID, &r.Name, &r.Location, &r.District, &r.City, &r.Status, &r.Mode)
		if err != nil {
			return nil, fmt.Errorf("failed to scan road: %w", err)
		}
		roads = append(roads, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read roads: %w", err)
	}

	for i := range roads {
		roads[i].Devices, err = getDevices(db, roads[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return roads, nil
}

// GetRoadByID retrieves one cached road. A missing road returns an error wrapping sql.ErrNoRows.
func GetRoadByID(db *sql.DB, id int) (*model.Road, error) {
	var r model.Road
	err := db.QueryRow(`SELECT id, name, location, district, city, status, mode FROM roads WHERE id = ?`, id).
		Scan(&r.ID, &r.Name, &r.Location, &r.District, &r.City, &r.Status, &r.Mode)
	if err != nil {
		return nil, fmt.Errorf("failed to get road %d: %w", id, err)
	}

	r.Devices, err = getDevices(db, id)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func getDevices(db *sql.DB, roadID int) ([]model.Device, error) {
	rows, err := db.Query(`SELECT device_id, name, device_type, direction_from, direction_to, status FROM devices WHERE road_id = ? ORDER BY position`, roadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices for road %d: %w", roadID, err)
	}
	defer rows.Close()

	devices := []model.Device{}
	for rows.Next() {
		d := model.Device{RoadID: roadID}
		err = rows.Scan(&d.DeviceID, &d.Name, &d.Type, &d.DirectionFrom, &d.DirectionTo, &d.Status)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// GetSnapshotTime reports when the snapshot was last replaced.
func GetSnapshotTime(db *sql.DB) (time.Time, error) {
	var savedAt string
	err := db.QueryRow(`SELECT saved_at FROM snapshot WHERE id = 1`).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNoSnapshot
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get snapshot time: %w", err)
	}
	return time.Parse(time.RFC3339, savedAt)
}
