package db

import (
	"github.com/thatsimonsguy/intersection-view/internal/model"
)

func ListRoadsCLI(dbPath string) ([]model.Road, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return GetRoads(conn)
}

func SetRoadModeCLI(dbPath string, roadID int, mode model.Mode) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := StartTransaction(conn)
	if err != nil {
		return err
	}
	if err := UpdateRoadModeWithTx(tx, roadID, mode); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}
