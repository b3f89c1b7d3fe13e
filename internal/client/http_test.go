package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newInventoryServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/devices", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[{"id":1,"name":"PC-001","ip":"192.168.1.101","status":"online","alerts":3},{"name":"PC-023"}]`))
	})
	mux.HandleFunc("/api/devices/1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":1,"name":"PC-001","ip":"192.168.1.101","os":"Windows 10","status":"online"}`))
	})
	mux.HandleFunc("/api/devices/1/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		var u StatusUpdate
		json.NewDecoder(r.Body).Decode(&u)
		json.NewEncoder(w).Encode(Device{ID: "1", Name: "PC-001", Status: u.Status})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestListDevices(t *testing.T) {
	srv := newInventoryServer(t)
	c := NewHTTPClient(srv.URL+"/api/", "secret")

	devices, err := c.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("len = %d, want 2", len(devices))
	}
	if devices[0].Identity() != "1" || devices[0].Alerts != 3 {
		t.Errorf("devices[0] = %+v", devices[0])
	}
	if devices[1].Identity() != "PC-023" {
		t.Errorf("devices[1].Identity() = %q, want PC-023", devices[1].Identity())
	}
}

func TestListDevicesUnauthorized(t *testing.T) {
	srv := newInventoryServer(t)
	c := NewHTTPClient(srv.URL+"/api", "")

	if _, err := c.ListDevices(context.Background()); err == nil {
		t.Error("ListDevices without token: want error")
	}
}

func TestGetDeviceAndUpdateStatus(t *testing.T) {
	srv := newInventoryServer(t)
	c := NewHTTPClient(srv.URL+"/api", "secret")

	d, err := c.GetDevice(context.Background(), "1")
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if d.OS != "Windows 10" {
		t.Errorf("OS = %q, want Windows 10", d.OS)
	}

	d, err = c.UpdateStatus(context.Background(), "1", "offline")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if d.Status != "offline" {
		t.Errorf("Status = %q, want offline", d.Status)
	}

	if _, err := c.GetDevice(context.Background(), "404"); err == nil {
		t.Error("GetDevice(404): want error")
	}
}
