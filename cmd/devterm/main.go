package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dids/devterm/internal/app"
	"github.com/dids/devterm/internal/client"
	"github.com/dids/devterm/internal/config"
	"github.com/dids/devterm/internal/views/debug"
	flag "github.com/spf13/pflag"
)

func main() {
	configPath := flag.StringP("config", "c", "config.yaml", "Path to config file (YAML or TOML)")
	brokerURL := flag.String("url", "", "WebSocket URL of the relay's STOMP endpoint")
	apiURL := flag.String("api", "", "Base URL of the device inventory API")
	token := flag.String("token", "", "Auth token (if the relay requires it)")
	deviceArg := flag.StringP("device", "d", "", "Device id or name to open a terminal on")
	plain := flag.Bool("plain", false, "Use the current terminal directly instead of the full-screen UI")
	logPath := flag.String("log", "devterm.log", "Append logs to this file (--plain only logs when set explicitly)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fail(err)
	}
	tc := cfg.Terminal
	if *brokerURL != "" {
		tc.BrokerURL = *brokerURL
	}
	if *apiURL != "" {
		tc.APIURL = *apiURL
	}
	if *token != "" {
		tc.Token = *token
	}
	if *deviceArg == "" && flag.NArg() > 0 {
		*deviceArg = flag.Arg(0)
	}

	logs := debug.NewLog(nil)
	var logFile io.Writer = io.Discard
	if *logPath != "" && (!*plain || flag.CommandLine.Changed("log")) {
		f, err := tea.LogToFile(*logPath, "")
		if err != nil {
			fail(err)
		}
		defer f.Close()
		logFile = f
	}
	if *plain {
		log.SetOutput(logFile)
	} else {
		log.SetOutput(io.MultiWriter(logFile, logs))
	}

	api := client.NewHTTPClient(tc.APIURL, tc.Token)
	device, err := resolveDevice(api, *deviceArg)
	if err != nil {
		fail(err)
	}

	broker := client.NewStompClient(tc.BrokerURL, client.StompOptions{
		Token:             tc.Token,
		ReconnectDelay:    tc.ReconnectDelay,
		HeartbeatIncoming: tc.HeartbeatIncoming,
		HeartbeatOutgoing: tc.HeartbeatOutgoing,
		ConnectTimeout:    tc.ConnectTimeout,
	})

	if *plain {
		if err := runPlain(device, broker, tc); err != nil {
			fail(err)
		}
		return
	}

	m, err := app.New(device, broker, app.Options{
		TopicPrefix: tc.TopicPrefix,
		Destination: tc.Destination,
		Log:         logs,
	})
	if err != nil {
		fail(err)
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	m.Session().Close()
	if err != nil {
		fail(err)
	}
}

// resolveDevice looks arg up in the inventory, or lets the user pick when
// arg is empty. A device the inventory cannot be asked about is opened by
// name alone.
func resolveDevice(api *client.HTTPClient, arg string) (client.Device, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if arg == "" {
		devices, err := api.ListDevices(ctx)
		if err != nil {
			return client.Device{}, fmt.Errorf("list devices: %w", err)
		}
		return pickDevice(devices)
	}

	d, err := api.GetDevice(ctx, arg)
	if err != nil {
		log.Printf("inventory lookup for %q failed: %v; opening by name", arg, err)
		return client.Device{Name: arg}, nil
	}
	return *d, nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
