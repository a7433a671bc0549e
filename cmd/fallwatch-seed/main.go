package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Kaiettt/iot-fall-detection/internal/client"
	"github.com/Kaiettt/iot-fall-detection/internal/common/logger"
	"github.com/Kaiettt/iot-fall-detection/internal/seed"

	cli "github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	server := cli.StringP("server", "s", "http://localhost:8080", "fallwatch base URL")
	email := cli.StringP("email", "u", "demo@example.com", "Username (e-mail) to seed")
	password := cli.StringP("password", "p", "demo", "Password used when the user is created")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log, err := logger.NewLogger(*logLevel, "console", "fallwatch-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	api := client.NewAPIClient(*server, "", log)
	res, err := seed.Run(ctx, api, *email, *password, seed.SampleEvents(time.Now()), log)
	if err != nil {
		log.Error("Seed failed", zap.Error(err))
		os.Exit(1)
	}

	fmt.Printf("user %s: %d events added, %d skipped\n", res.UserID, res.Appended, res.Skipped)
}
