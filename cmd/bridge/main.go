package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"companion-bridge/internal/agent"
	"companion-bridge/internal/config"

	"github.com/joho/godotenv"
)

// These variables will be set by the build script
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "bridge.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "path to a dotenv file with secrets")
	flag.Parse()

	log.Printf("Starting companion bridge version: %s, commit: %s, built: %s", version, commit, date)

	if err := loadDotEnv(*envPath); err != nil {
		log.Fatalf("Failed to load %s: %v", *envPath, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	a, err := agent.NewAgent(cfg)
	if err != nil {
		log.Fatalf("Failed to create bridge: %v", err)
	}

	go a.Run()

	// Wait for termination signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down bridge...")
	a.Shutdown()
	log.Println("Bridge shut down gracefully.")
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
