package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/thatsimonsguy/intersection-view/db"
	"github.com/thatsimonsguy/intersection-view/internal/control"
	"github.com/thatsimonsguy/intersection-view/internal/model"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, controlURL, mode, green, red string
	var roadID int
	flag.StringVar(&dbPath, "db", "data/registry.db", "Path to the registry snapshot database")
	flag.StringVar(&command, "cmd", "", "Command to run: list-roads, set-mode, set-cycle")
	flag.StringVar(&controlURL, "control", "http://localhost:8080", "Base URL of the signal controller")
	flag.IntVar(&roadID, "road", 0, "Road ID for road commands")
	flag.StringVar(&mode, "mode", "", "Mode for set-mode (auto or manual)")
	flag.StringVar(&green, "green", "", "Green seconds for set-cycle")
	flag.StringVar(&red, "red", "", "Red seconds for set-cycle")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of intersection-debug:")
		fmt.Println("  -db string\tPath to the registry snapshot database (default 'data/registry.db')")
		fmt.Println("  -cmd string\tCommand to run: list-roads, set-mode, set-cycle")
		fmt.Println("  -control string\tBase URL of the signal controller")
		fmt.Println("  -road int\tRoad ID for road commands")
		fmt.Println("  -mode string\tMode for set-mode (auto or manual)")
		fmt.Println("  -green string\tGreen seconds for set-cycle")
		fmt.Println("  -red string\tRed seconds for set-cycle")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	dispatcher := control.NewDispatcher(controlURL, 10*time.Second)

	var err error
	switch command {
	case "list-roads":
		err = listRoads(dbPath)
	case "set-mode":
		if roadID == 0 {
			fmt.Println("Error: road ID is required")
			os.Exit(1)
		}
		m := model.Mode(mode)
		if err = dispatcher.SetMode(ctx, roadID, m); err == nil {
			if cerr := db.SetRoadModeCLI(dbPath, roadID, m); cerr != nil {
				fmt.Printf("Note: snapshot not updated: %v\n", cerr)
			}
		}
	case "set-cycle":
		c, ok := control.ParseCycle(green, red)
		if !ok {
			fmt.Println("Error: green and red must be positive integers")
			os.Exit(1)
		}
		err = dispatcher.SetCycle(ctx, roadID, c)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}

func listRoads(dbPath string) error {
	roads, err := db.ListRoadsCLI(dbPath)
	if err != nil {
		return err
	}
	for _, r := range roads {
		cameras, lights := 0, 0
		for _, d := range r.Devices {
			if d.Type == model.DeviceCamera {
				cameras++
			} else {
				lights++
			}
		}
		fmt.Printf("%4d  %-24s %-16s mode=%-6s cameras=%d lights=%d\n", r.ID, r.Name, r.Location, r.Mode, cameras, lights)
	}
	return nil
}
