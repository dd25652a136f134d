// cvstream serves OpenCV matrices, cascade detection and a live video feed
// over HTTP and websockets.
//
// Usage:
//
//	cvstream [--config cvstream.yaml] [--port 8080] [--source 0] [--data-dir data]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/teslashibe/go-cvstream/internal/config"
	"github.com/teslashibe/go-cvstream/internal/log"
	"github.com/teslashibe/go-cvstream/pkg/engine/gocvengine"
	"github.com/teslashibe/go-cvstream/pkg/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, port, source, dataDir, logLevel string

	flagSet := pflag.NewFlagSet("cvstream", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", config.File(), "YAML config file (env CVSTREAM_CONFIG)")
	flagSet.StringVarP(&port, "port", "p", "", "listen port (env CVSTREAM_PORT)")
	flagSet.StringVarP(&source, "source", "s", "", "capture source: device index, file or URL (env CVSTREAM_SOURCE)")
	flagSet.StringVar(&dataDir, "data-dir", "", "cascade data directory (env CV_DATA_DIR)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("port") {
		cfg.Port = port
	}
	if flagSet.Changed("source") {
		cfg.Source = source
	}
	if flagSet.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "   • %s\n", p)
		}
		return fmt.Errorf("invalid configuration")
	}

	log.Init(cfg.LogLevel)
	log.Debug("configuration loaded", "file", configPath, "cascades", len(cfg.Cascades), "max_body", cfg.MaxBodyBytes)

	fmt.Println("🎥 cvstream")
	fmt.Println("===========")
	fmt.Printf("Port:     %s\n", cfg.Port)
	fmt.Printf("Data dir: %s\n", cfg.DataDir)
	if cfg.Source != "" {
		fmt.Printf("Source:   %s\n", cfg.Source)
	} else {
		fmt.Println("Source:   none (video feed disabled)")
	}

	server, err := web.NewServer(gocvengine.New(), cfg)
	if err != nil {
		log.Error("server setup failed", "source", cfg.Source, "error", err)
		return err
	}
	log.Info("cvstream starting", "port", cfg.Port, "source", cfg.Source, "data_dir", cfg.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()

	select {
	case <-ctx.Done():
		fmt.Println("\n👋 Shutting down...")
	case err := <-errCh:
		log.Error("server stopped", "error", err)
		if serr := server.Shutdown(); serr != nil {
			log.Warn("shutdown failed", "error", serr)
		}
		return err
	}

	if err := server.Shutdown(); err != nil {
		log.Warn("shutdown failed", "error", err)
		return err
	}
	log.Info("cvstream stopped")
	return nil
}
