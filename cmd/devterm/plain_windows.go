package main

import (
	"errors"

	"github.com/dids/devterm/internal/client"
	"github.com/dids/devterm/internal/config"
	"github.com/dids/devterm/internal/terminal"
)

func runPlain(client.Device, terminal.Broker, config.TerminalConfig) error {
	return errors.New("--plain is not supported on Windows")
}
