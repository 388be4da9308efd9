package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/rollkeeper/internal/logging"
	"github.com/dmitrijs2005/rollkeeper/internal/rosterctl"
	"github.com/dmitrijs2005/rollkeeper/internal/server"
	"github.com/dmitrijs2005/rollkeeper/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	args, err := rosterctl.CommandArgs(os.Args[1:])
	if err != nil || len(args) == 0 {
		fmt.Fprintln(os.Stderr, rosterctl.Usage)
		os.Exit(2)
	}

	logger := logging.NewJSONLogger(os.Stderr, cfg.LogLevel)
	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	cli := rosterctl.New(app.Reconciler(), os.Stdout, cfg.SecretKey, cfg.AccessTokenValidityDuration)
	err = cli.Run(ctx, args)
	app.Close()

	if err != nil {
		if errors.Is(err, rosterctl.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, rosterctl.Usage)
			os.Exit(2)
		}
		log.Fatalf("%v", err)
	}
}
