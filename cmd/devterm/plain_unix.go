//go:build !windows

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dids/devterm/internal/client"
	"github.com/dids/devterm/internal/config"
	"github.com/dids/devterm/internal/terminal"
	"golang.org/x/term"
)

// runPlain runs the session on the controlling terminal in raw mode. The
// terminal emulator renders echo and colors itself.
func runPlain(d client.Device, broker terminal.Broker, tc config.TerminalConfig) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("--plain needs a terminal on stdin")
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer term.Restore(fd, old)

	display := terminal.NewWriterDisplay(os.Stdout)
	display.OnRefit = func() {
		if w, h, err := term.GetSize(fd); err == nil {
			log.Printf("terminal %s: resized to %dx%d", d.Identity(), w, h)
		}
	}
	resize := terminal.NewResizeNotifier()

	session, err := terminal.New(d, broker, display,
		terminal.WithResizer(resize),
		terminal.WithTopicPrefix(tc.TopicPrefix),
		terminal.WithDestination(tc.Destination),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for {
			select {
			case <-winch:
				resize.Notify()
			case <-session.Done():
				return
			}
		}
	}()

	session.Open()
	go pumpInput(os.Stdin, session)
	session.Run(ctx)
	display.Write("\r\n")
	return nil
}
