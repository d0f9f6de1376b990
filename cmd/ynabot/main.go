package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ynabot/internal/app"
	"ynabot/internal/config"
	"ynabot/internal/setup"
	logx "ynabot/pkg/logx"
)

func main() {
	var (
		cfgPath  = flag.String("config", "./config.yaml", "path to config file (yaml or json)")
		once     = flag.Bool("once", false, "run a single poll cycle and exit")
		check    = flag.Bool("check", false, "verify API credentials and exit")
		checkCfg = flag.Bool("check-config", false, "validate config file and exit")
		runSetup = flag.Bool("setup", false, "interactive first-run setup")
	)
	flag.Parse()

	// Secrets may live in a local .env instead of the config file.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *checkCfg {
		if _, err := config.NewManager(*cfgPath).Load(); err != nil {
			fmt.Fprintln(os.Stderr, "config invalid:", err)
			os.Exit(1)
		}
		fmt.Println("config ok")
		return
	}

	if *runSetup {
		w := setup.New(os.Stdin, os.Stdout, logx.NewConsole("WARN"))
		if err := w.Run(ctx, *cfgPath); err != nil {
			fmt.Fprintln(os.Stderr, "setup failed:", err)
			os.Exit(1)
		}
		return
	}

	a, err := app.New(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	switch {
	case *check:
		if err := a.CheckConnections(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "check failed:", err)
			os.Exit(1)
		}
		fmt.Println("ok")
		return
	case *once:
		if err := a.RunOnce(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "cycle failed:", err)
			os.Exit(1)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	<-a.Done()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)

	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
