package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"streakkeeper/internal/cli"
)

func main() {
	_ = godotenv.Load() // TELEGRAM_BOT_TOKEN etc.

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
