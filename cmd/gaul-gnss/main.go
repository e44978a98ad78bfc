package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gaul-gnss/internal/config"
	"gaul-gnss/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./gaul-gnss.yaml", "Path to YAML config")
	flag.Parse()

	logs := web.NewLogBuffer(2000)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("gaul-gnss starting config=%s", configPath)
	rt := newRuntime(ctx, cfg, logs)
	defer rt.Close()

	if err := rt.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("gaul-gnss stopped: %v", err)
	}
	log.Printf("gaul-gnss stopping")
}
