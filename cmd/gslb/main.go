package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/curtisra-gif/simple-gslb/internal/config"
)

var gitCommit = "unknown"

func usage() {
	fmt.Fprint(flag.CommandLine.Output(), "usage: \n")
	fmt.Fprintf(flag.CommandLine.Output(), "       %s [controller]\n", os.Args[0])
	fmt.Fprint(flag.CommandLine.Output(), "\nthe mode defaults to $MODE, then \"controller\"\n")
	flag.PrintDefaults()
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync() // flushes buffer before exit

	mode := cfg.Mode
	if flag.NArg() > 0 {
		mode = flag.Arg(0)
	}
	mode = strings.ToLower(mode)

	logger.Info("starting simple-gslb", zap.String("mode", mode), zap.String("commit", gitCommit))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch mode {
	case config.ModeController:
		err = runController(ctx, logger, cfg)
	default:
		logger.Error("unknown mode", zap.String("mode", mode))
		_ = logger.Sync()
		usage()
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("controller exited", zap.Error(err))
	}
}
