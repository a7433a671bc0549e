package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Kaiettt/iot-fall-detection/internal/aggregator"
	"github.com/Kaiettt/iot-fall-detection/internal/client"
	"github.com/Kaiettt/iot-fall-detection/internal/common/logger"
	"github.com/Kaiettt/iot-fall-detection/internal/models"

	cli "github.com/spf13/pflag"
	"go.uber.org/zap"
)

const usage = `Usage: fallwatchctl [flags] <command> [args]

Commands:
  signup              create an account (--user, --password)
  signin              check credentials (--user, --password)
  ask <text...>       send an utterance to the assistant
  dashboard           print the current dashboard view
  export              download the window as .xlsx (--out)

Flags:
`

func main() {
	server := cli.StringP("server", "s", "http://localhost:8080", "fallwatch base URL")
	user := cli.StringP("user", "u", os.Getenv("FALLWATCH_USER"), "Session username (e-mail)")
	password := cli.StringP("password", "p", "", "Password for signup / signin")
	out := cli.StringP("out", "o", "fall_events.xlsx", "Export destination")
	tz := cli.String("tz", "Local", "Time zone used to print timestamps")
	logLevel := cli.StringP("log", "l", "warn", "Log level")
	cli.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		cli.PrintDefaults()
	}
	cli.Parse()

	if cli.NArg() == 0 {
		cli.Usage()
		os.Exit(2)
	}

	log, err := logger.NewLogger(*logLevel, "console", "fallwatchctl")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --tz %q: %v\n", *tz, err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	api := client.NewAPIClient(*server, *user, log)
	if err := run(ctx, api, cli.Arg(0), cli.Args()[1:], *user, *password, *out, loc); err != nil {
		log.Debug("Command failed", zap.String("command", cli.Arg(0)), zap.Error(err))
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, api *client.APIClient, cmd string, args []string, user, password, out string, loc *time.Location) error {
	switch cmd {
	case "signup":
		acc, err := api.SignUp(ctx, user, password)
		if err != nil {
			return err
		}
		fmt.Printf("created %s (user id %s)\n", acc.Username, acc.UserID)

	case "signin":
		acc, err := api.SignIn(ctx, user, password)
		if err != nil {
			return err
		}
		fmt.Printf("signed in as %s (user id %s)\n", acc.Username, acc.UserID)

	case "ask":
		if len(args) == 0 {
			return fmt.Errorf("ask needs an utterance")
		}
		reply, err := api.Ask(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		switch {
		case reply.Ignored:
			fmt.Println("(a status query is already in progress)")
		case !reply.Handled:
			fmt.Println("(not understood)")
		default:
			fmt.Println(reply.Text)
		}

	case "dashboard":
		view, err := api.Dashboard(ctx)
		if err != nil {
			return err
		}
		printView(view, loc)

	case "export":
		data, err := api.Export(ctx)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		fmt.Printf("wrote %s (%d bytes)\n", out, len(data))

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func printView(view aggregator.View, loc *time.Location) {
	s := view.Stats
	fmt.Printf("Total falls:        %d\n", s.TotalFalls)
	fmt.Printf("Average heart rate: %d bpm\n", s.AvgHeartRate)
	fmt.Printf("Latest heart rate:  %d bpm\n", s.LatestHeartRate)
	if s.LastFallTime != nil {
		fmt.Printf("Last fall:          %s\n", models.FormatLabel(*s.LastFallTime, loc))
	} else {
		fmt.Printf("Last fall:          %s\n", s.LastFallLabel)
	}
	if len(view.Window) == 0 {
		return
	}

	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tFALL\tHEART RATE\tID")
	for _, e := range view.Window {
		fall := "no"
		if e.FallDetected {
			fall = "YES"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", models.FormatSpoken(e.Timestamp, loc), fall, e.HeartRate, e.ID)
	}
	_ = tw.Flush()
}
