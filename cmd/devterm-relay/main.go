package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dids/devterm/internal/config"
	"github.com/dids/devterm/internal/inventory"
	"github.com/dids/devterm/internal/relay"
	flag "github.com/spf13/pflag"
)

func main() {
	configPath := flag.StringP("config", "c", "config.yaml", "Path to config file (YAML or TOML)")
	port := flag.IntP("port", "p", 0, "Override server port")
	mockMode := flag.Bool("mock", false, "Seed the inventory with demo devices")
	hashToken := flag.String("hash-token", "", "Print the bcrypt hash for a token and exit")
	flag.Parse()

	if *hashToken != "" {
		h, err := relay.HashToken(*hashToken)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(h)
		return
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := inventory.Open(ctx, cfg.Inventory)
	if err != nil {
		log.Fatalf("Failed to open inventory: %v", err)
	}
	defer store.Close()

	if *mockMode {
		log.Println("Seeding demo devices")
		if err := inventory.Seed(ctx, store, inventory.DemoDevices(time.Now())); err != nil {
			log.Fatalf("Failed to seed inventory: %v", err)
		}
	}

	r := relay.New(ctx, cfg, store)
	if cfg.Server.TokenHash == "" {
		log.Println("No server.token_hash set; API and WebSocket are unauthenticated")
	}

	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			if err := r.Apply(ctx, next); err != nil {
				log.Printf("config reload: %v", err)
			}
		})
		if err != nil {
			log.Printf("config watch disabled: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	if err := relay.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, r.Handler()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
