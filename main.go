package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"pita/cmd"
	"pita/internal/config"
	"pita/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// The logger comes up even with an invalid configuration so commands
	// can report it.
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Warning: Could not load configuration: %v", err)
		if err := logger.Setup(logger.DefaultConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	} else {
		if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	}

	log := logger.WithComponent("main")
	log.Debug().Msg("Starting PITA")

	cmd.Execute()

	log.Debug().Msg("PITA shutdown")
	os.Exit(0)
}
