// Package inventory stores the device records terminal sessions are opened
// against. A Store is keyed by device identity (id, or name when the id is
// empty).
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dids/devterm/internal/client"
	"github.com/dids/devterm/internal/config"
)

var (
	ErrNotFound   = errors.New("device not found")
	ErrNoIdentity = errors.New("device has no id or name")
	ErrBadStatus  = errors.New("invalid device status")
	validStatuses = []string{"online", "offline"}
)

type Store interface {
	List(ctx context.Context) ([]client.Device, error)
	Get(ctx context.Context, id string) (client.Device, error)
	Put(ctx context.Context, d client.Device) error
	UpdateStatus(ctx context.Context, id, status string) (client.Device, error)
	Close() error
}

// Open returns the store selected by cfg.Driver, seeded with cfg.Devices.
func Open(ctx context.Context, cfg config.InventoryConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "memory":
		s = NewMemoryStore()
	case "sqlite":
		s, err = OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown inventory driver %q", cfg.Driver)
	}
	if err := Seed(ctx, s, FromSeeds(cfg.Devices)); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Seed writes devices into s, replacing records with the same identity.
func Seed(ctx context.Context, s Store, devices []client.Device) error {
	for _, d := range devices {
		if err := s.Put(ctx, d); err != nil {
			return fmt.Errorf("seed %s: %w", d.Identity(), err)
		}
	}
	return nil
}

func FromSeeds(seeds []config.DeviceSeed) []client.Device {
	out := make([]client.Device, 0, len(seeds))
	for _, sd := range seeds {
		out = append(out, client.Device{
			ID:     client.DeviceID(sd.ID),
			Name:   sd.Name,
			IP:     sd.IP,
			OS:     sd.OS,
			Status: sd.Status,
			Alerts: sd.Alerts,
		})
	}
	return out
}

// ValidStatus reports whether status is one a device can be set to.
func ValidStatus(status string) bool {
	for _, v := range validStatuses {
		if strings.EqualFold(status, v) {
			return true
		}
	}
	return false
}

func sortDevices(ds []client.Device) {
	sort.Slice(ds, func(i, j int) bool {
		return ds[i].Name < ds[j].Name
	})
}
