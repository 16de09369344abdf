package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"lie-detector/utils"

	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
)

func main() {
	_ = godotenv.Load()

	if err := utils.CreateFolder("data"); err != nil {
		logger := utils.GetLogger()
		err := xerrors.New(err)
		ctx := context.Background()
		logger.ErrorContext(ctx, "Failed create data dir.", slog.Any("error", err))
	}

	if len(os.Args) < 2 {
		fmt.Println("Expected 'serve' subcommand")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		protocol := serveCmd.String("proto", "http", "Protocol to use (http or https)")
		port := serveCmd.String("p", utils.GetEnv("PORT", "5000"), "Port to use")
		tuning := serveCmd.String("tuning", utils.GetEnv("TUNING_PATH", "tuning.yaml"), "Detection tuning file (YAML)")
		serveCmd.Parse(os.Args[2:])
		serve(*protocol, *port, *tuning)
	default:
		fmt.Println("Expected 'serve' subcommand")
		os.Exit(1)
	}
}
