package client

import (
	"encoding/json"
	"testing"
)

func TestDeviceIDUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want DeviceID
	}{
		{`{"id": 1, "name": "PC-001"}`, "1"},
		{`{"id": "15", "name": "PC-015"}`, "15"},
		{`{"id": null, "name": "PC-023"}`, ""},
		{`{"name": "PC-023"}`, ""},
	}
	for _, tt := range tests {
		var d Device
		if err := json.Unmarshal([]byte(tt.in), &d); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tt.in, err)
		}
		if d.ID != tt.want {
			t.Errorf("Unmarshal(%s).ID = %q, want %q", tt.in, d.ID, tt.want)
		}
	}
}

func TestDeviceIDRejectsObject(t *testing.T) {
	var d Device
	if err := json.Unmarshal([]byte(`{"id": {}}`), &d); err == nil {
		t.Error("Unmarshal with object id: want error")
	}
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		d    Device
		want string
	}{
		{Device{ID: "1", Name: "PC-001"}, "1"},
		{Device{Name: "PC-023"}, "PC-023"},
		{Device{ID: "  ", Name: "PC-023"}, "PC-023"},
		{Device{}, ""},
	}
	for _, tt := range tests {
		if got := tt.d.Identity(); got != tt.want {
			t.Errorf("%+v.Identity() = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTerminalMessageWireNames(t *testing.T) {
	data, err := json.Marshal(TerminalMessage{
		DeviceID:   "1",
		DeviceName: "PC-001",
		DeviceIP:   "192.168.1.101",
		Type:       MsgConnect,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"deviceId":"1","deviceName":"PC-001","deviceIp":"192.168.1.101","type":"connect","command":""}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
}
