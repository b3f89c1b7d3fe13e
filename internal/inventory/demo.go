package inventory

import (
	"time"

	"github.com/dids/devterm/internal/client"
)

// DemoDevices returns the sample fleet used by the relay's --mock mode.
func DemoDevices(now time.Time) []client.Device {
	return []client.Device{
		{ID: "1", Name: "PC-001", IP: "192.168.1.101", OS: "Windows 10", Status: "online",
			LastSeen: now.Add(-2 * time.Minute), Alerts: 3},
		{ID: "15", Name: "PC-015", IP: "192.168.1.115", OS: "Windows 11", Status: "online",
			LastSeen: now.Add(-30 * time.Second), Alerts: 1},
		{ID: "23", Name: "PC-023", IP: "192.168.1.123", OS: "Ubuntu 22.04", Status: "offline",
			LastSeen: now.Add(-26 * time.Hour)},
	}
}
