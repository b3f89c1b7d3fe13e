package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dids/devterm/internal/client"
	"github.com/peterh/liner"
)

// pickDevice lists devices and prompts for one, completing on id and name.
func pickDevice(devices []client.Device) (client.Device, error) {
	if len(devices) == 0 {
		return client.Device{}, errors.New("inventory has no devices")
	}

	fmt.Println("Devices:")
	for _, d := range devices {
		fmt.Printf("  %-6s %-14s %-16s %s\n", d.ID, d.Name, d.IP, d.Status)
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		return completeDevice(devices, prefix)
	})

	for {
		input, err := line.Prompt("device> ")
		if err != nil {
			return client.Device{}, err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if d, ok := findDevice(devices, input); ok {
			line.AppendHistory(input)
			return d, nil
		}
		fmt.Printf("No device %q\n", input)
	}
}

// findDevice matches q against ids exactly and names case-insensitively.
func findDevice(devices []client.Device, q string) (client.Device, bool) {
	for _, d := range devices {
		if string(d.ID) == q {
			return d, true
		}
	}
	for _, d := range devices {
		if strings.EqualFold(d.Name, q) {
			return d, true
		}
	}
	return client.Device{}, false
}

func completeDevice(devices []client.Device, prefix string) []string {
	lower := strings.ToLower(prefix)
	var out []string
	for _, d := range devices {
		if strings.HasPrefix(strings.ToLower(d.Name), lower) {
			out = append(out, d.Name)
		} else if id := string(d.ID); id != "" && strings.HasPrefix(id, prefix) {
			out = append(out, id)
		}
	}
	return out
}
