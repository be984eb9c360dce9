package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/nerrad567/slotlink-core/internal/audit"
	"github.com/nerrad567/slotlink-core/internal/slot"
)

func dashboardSlots(t *testing.T, env *testEnv) {
	t.Helper()
	env.createSlot(t, slot.Slot{SlotNumber: 1, Type: slot.TypeValue, Name: "Temp", ThresholdMax: ptr(30)})
	env.createSlot(t, slot.Slot{SlotNumber: 2, Type: slot.TypeCamera, Name: "Porch"})
	env.createSlot(t, slot.Slot{SlotNumber: 3, Type: slot.TypeControl, Name: "Pump"})
	env.createSlot(t, slot.Slot{SlotNumber: 4, Type: slot.TypeControl, Name: "Fan"})
}

func TestDashboardStats(t *testing.T) {
	env := newTestEnv(t)
	dashboardSlots(t, env)
	assertStatus(t, env.do(t, http.MethodPost, "/api/data", `{"slot":1,"value":45}`, ""), http.StatusCreated)

	w := env.do(t, http.MethodGet, "/api/dashboard/stats", "", env.userToken)
	assertStatus(t, w, http.StatusOK)

	data, _ := decodeBody(t, w)["data"].(map[string]any) //nolint:errcheck // checked below
	want := map[string]float64{"total_slots": 4, "total_cameras": 1, "total_controls": 2, "unread_alerts": 1}
	for k, v := range want {
		if data[k] != v {
			t.Errorf("%s = %v, want %v", k, data[k], v)
		}
	}
}

func TestDashboardFull(t *testing.T) {
	env := newTestEnv(t)
	dashboardSlots(t, env)
	for range 12 {
		assertStatus(t, env.do(t, http.MethodPost, "/api/data", `{"slot":1,"value":45}`, ""), http.StatusCreated)
	}

	w := env.do(t, http.MethodGet, "/api/dashboard/full", "", env.userToken)
	assertStatus(t, w, http.StatusOK)

	resp := decodeBody(t, w)
	for _, key := range []string{"stats", "slots", "data", "alerts", "mqtt"} {
		if _, ok := resp[key]; !ok {
			t.Errorf("missing %q", key)
		}
	}
	if alerts, _ := resp["alerts"].([]any); len(alerts) != dashboardAlertLimit { //nolint:errcheck // nil on miss
		t.Errorf("alerts = %d, want %d", len(alerts), dashboardAlertLimit)
	}
	if slots, _ := resp["slots"].([]any); len(slots) != 4 { //nolint:errcheck // nil on miss
		t.Errorf("slots = %d, want 4", len(slots))
	}
}

func TestMQTTStatus(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/mqtt/status", "", env.userToken)
	assertStatus(t, w, http.StatusOK)
	data, _ := decodeBody(t, w)["data"].(map[string]any) //nolint:errcheck // checked below
	if data["connected"] != true || data["port"] != float64(1883) {
		t.Errorf("data = %v", data)
	}

	env.srv.mqtt = &fakeTransport{connected: false}
	w = env.do(t, http.MethodGet, "/api/mqtt/status", "", env.userToken)
	data, _ = decodeBody(t, w)["data"].(map[string]any) //nolint:errcheck // checked below
	if data["connected"] != false {
		t.Errorf("connected = %v, want false", data["connected"])
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	dashboardSlots(t, env)

	w := env.do(t, http.MethodGet, "/api/system/metrics", "", env.adminToken)
	assertStatus(t, w, http.StatusOK)

	data, _ := decodeBody(t, w)["data"].(map[string]any) //nolint:errcheck // checked below
	if data["version"] != "test" {
		t.Errorf("version = %v", data["version"])
	}
	runtime, _ := data["runtime"].(map[string]any)       //nolint:errcheck // checked below
	if g, _ := runtime["goroutines"].(float64); g <= 0 { //nolint:errcheck // zero on miss
		t.Errorf("goroutines = %v", runtime["goroutines"])
	}
	slots, _ := data["slots"].(map[string]any) //nolint:errcheck // checked below
	if slots["total"] != float64(4) || slots["max"] != float64(20) {
		t.Errorf("slots = %v", slots)
	}
	if _, ok := data["host"].(map[string]any); !ok {
		t.Errorf("host metrics missing: %v", data)
	}
}

func TestAuditLog(t *testing.T) {
	env := newTestEnv(t)

	assertStatus(t, env.do(t, http.MethodPost, "/api/slots", `{"slot_number":1,"name":"Temp"}`, env.adminToken), http.StatusCreated)
	assertStatus(t, env.do(t, http.MethodDelete, "/api/slots/1", "", env.adminToken), http.StatusOK)

	// Entries are written asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for {
		res, err := env.auditRepo.List(context.Background(), audit.Filter{EntityType: audit.EntitySlot})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if res.Total >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit entries = %d, want 2", res.Total)
		}
		time.Sleep(10 * time.Millisecond)
	}

	w := env.do(t, http.MethodGet, "/api/admin/audit?entity_type=slot&action=delete", "", env.adminToken)
	assertStatus(t, w, http.StatusOK)
	data, _ := decodeBody(t, w)["data"].(map[string]any) //nolint:errcheck // checked below
	logs, _ := data["logs"].([]any)                      //nolint:errcheck // checked below
	if len(logs) != 1 {
		t.Fatalf("logs = %d, want 1", len(logs))
	}
	entry := logs[0].(map[string]any) //nolint:errcheck // test
	if entry["entity_id"] != "1" || entry["user_id"] != env.admin.ID {
		t.Errorf("entry = %v", entry)
	}

	assertStatus(t, env.do(t, http.MethodGet, "/api/admin/audit?offset=-1", "", env.adminToken), http.StatusBadRequest)
}
