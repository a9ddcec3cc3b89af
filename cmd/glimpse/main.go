package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// API keys for model-backed samplers may live in a local .env.
	_ = godotenv.Load()

	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
