package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"grove-gnss/internal/config"
	"grove-gnss/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./dev.yaml", "Path to YAML config")
	flag.Parse()

	logs := web.NewLogBuffer(1000)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("grove-gnss starting config=%s", configPath)
	rt, err := newLiveRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("runtime init failed: %v", err)
	}
	defer rt.Close()

	webDone := make(chan struct{})
	if addr := cfg.Web.Addr(); addr != "" {
		handler := rt.Handler(ctx, web.NewStatus(), logs)
		go func() {
			defer close(webDone)
			log.Printf("web listening on %s", addr)
			if err := web.Serve(ctx, addr, handler); err != nil && ctx.Err() == nil {
				log.Printf("web server stopped: %v", err)
				cancel()
			}
		}()
	} else {
		close(webDone)
	}

	<-ctx.Done()
	log.Printf("grove-gnss stopping")
	// Let in-flight requests drain before the runtime is torn down.
	<-webDone
}
