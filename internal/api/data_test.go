package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nerrad567/slotlink-core/internal/infrastructure/redis"
	"github.com/nerrad567/slotlink-core/internal/listener"
	"github.com/nerrad567/slotlink-core/internal/slot"
	"github.com/nerrad567/slotlink-core/internal/telemetry"
)

func TestPushReading(t *testing.T) {
	env := newTestEnv(t)
	env.createSlot(t, slot.Slot{SlotNumber: 1, Type: slot.TypeValue, Name: "Temp", ThresholdMax: ptr(30)})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"number", `{"slot":1,"value":25.5}`, http.StatusCreated},
		{"string slot", `{"slot":"1","value":"26"}`, http.StatusCreated},
		{"missing value", `{"slot":1}`, http.StatusBadRequest},
		{"missing slot", `{"value":1}`, http.StatusBadRequest},
		{"fractional slot", `{"slot":1.5,"value":1}`, http.StatusBadRequest},
		{"unknown slot", `{"slot":9,"value":1}`, http.StatusNotFound},
		{"invalid JSON", `{"slot":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/data", tt.body, "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	latest, err := env.readings.Latest(context.Background(), 1)
	if err != nil || latest == nil {
		t.Fatalf("Latest = %v, %v", latest, err)
	}
	if latest.Value != "26" {
		t.Errorf("latest value = %q, want 26", latest.Value)
	}
}

func TestPushReading_RaisesAlert(t *testing.T) {
	env := newTestEnv(t)
	env.createSlot(t, slot.Slot{SlotNumber: 1, Type: slot.TypeValue, Name: "Temp", Unit: "C", ThresholdMax: ptr(30)})

	w := env.do(t, http.MethodPost, "/api/data", `{"slot":1,"value":40}`, "")
	assertStatus(t, w, http.StatusCreated)

	n, err := env.alerts.UnreadCount(context.Background())
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if n != 1 {
		t.Errorf("unread alerts = %d, want 1", n)
	}
}

func TestPushReading_SameTextAsBroker(t *testing.T) {
	env := newTestEnv(t)
	env.createSlot(t, slot.Slot{SlotNumber: 1, Type: slot.TypeValue, Name: "HTTP"})
	env.createSlot(t, slot.Slot{SlotNumber: 2, Type: slot.TypeValue, Name: "MQTT"})
	l := listener.New(listener.Deps{Ingestor: env.ingestor})

	for _, value := range []string{"40.0", "12345678901234567891", "1e3", "-0.50"} {
		t.Run(value, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/data", `{"slot":1,"value":`+value+`}`, "")
			assertStatus(t, w, http.StatusCreated)
			l.Route(context.Background(), listener.ChannelTelemetry, []byte(`{"slot":2,"value":`+value+`}`))

			viaHTTP, err := env.readings.Latest(context.Background(), 1)
			if err != nil || viaHTTP == nil {
				t.Fatalf("Latest(1) = %v, %v", viaHTTP, err)
			}
			viaBroker, err := env.readings.Latest(context.Background(), 2)
			if err != nil || viaBroker == nil {
				t.Fatalf("Latest(2) = %v, %v", viaBroker, err)
			}
			if viaHTTP.Value != value || viaBroker.Value != value {
				t.Errorf("stored HTTP %q, broker %q, want %q for both", viaHTTP.Value, viaBroker.Value, value)
			}
		})
	}
}

func TestLatestAll(t *testing.T) {
	env := newTestEnv(t)
	env.createSlot(t, slot.Slot{SlotNumber: 1, Type: slot.TypeValue, Name: "Temp"})
	env.createSlot(t, slot.Slot{SlotNumber: 2, Type: slot.TypeStatus, Name: "Door"})
	env.createSlot(t, slot.Slot{SlotNumber: 3, Type: slot.TypeValue, Name: "Empty"})

	for _, body := range []string{`{"slot":1,"value":20}`, `{"slot":1,"value":21}`, `{"slot":2,"value":"open"}`} {
		assertStatus(t, env.do(t, http.MethodPost, "/api/data", body, ""), http.StatusCreated)
	}

	w := env.do(t, http.MethodGet, "/api/data", "", env.userToken)
	assertStatus(t, w, http.StatusOK)

	data, _ := decodeBody(t, w)["data"].(map[string]any) //nolint:errcheck // checked below
	if len(data) != 2 {
		t.Fatalf("latest = %v, want 2 slots", data)
	}
	if v := data["1"].(map[string]any)["value"]; v != "21" { //nolint:errcheck // test
		t.Errorf("slot 1 value = %v, want 21", v)
	}
	if v := data["2"].(map[string]any)["value"]; v != "open" { //nolint:errcheck // test
		t.Errorf("slot 2 value = %v, want open", v)
	}
}

func TestLatest(t *testing.T) {
	env := newTestEnv(t)
	env.createSlot(t, slot.Slot{SlotNumber: 1, Type: slot.TypeValue, Name: "Temp"})

	w := env.do(t, http.MethodGet, "/api/data/1", "", env.userToken)
	assertStatus(t, w, http.StatusOK)
	if data, present := decodeBody(t, w)["data"]; !present || data != nil {
		t.Errorf("data = %v (present %v), want explicit null", data, present)
	}

	assertStatus(t, env.do(t, http.MethodPost, "/api/data", `{"slot":1,"value":19}`, ""), http.StatusCreated)
	w = env.do(t, http.MethodGet, "/api/data/1", "", env.userToken)
	assertStatus(t, w, http.StatusOK)
	data, _ := decodeBody(t, w)["data"].(map[string]any) //nolint:errcheck // checked below
	if data["value"] != "19" {
		t.Errorf("data = %v", data)
	}

	assertStatus(t, env.do(t, http.MethodGet, "/api/data/8", "", env.userToken), http.StatusNotFound)
}

func TestLatest_ReadsThroughCache(t *testing.T) {
	env := newTestEnv(t)
	env.createSlot(t, slot.Slot{SlotNumber: 1, Type: slot.TypeValue, Name: "Cached"})
	env.createSlot(t, slot.Slot{SlotNumber: 2, Type: slot.TypeValue, Name: "Stored"})
	assertStatus(t, env.do(t, http.MethodPost, "/api/data", `{"slot":1,"value":10}`, ""), http.StatusCreated)
	assertStatus(t, env.do(t, http.MethodPost, "/api/data", `{"slot":2,"value":20}`, ""), http.StatusCreated)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.cache.values = map[int]*redis.Latest{1: {ID: 42, Value: "cached", At: at}}

	t.Run("hit", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/data/1", "", env.userToken)
		assertStatus(t, w, http.StatusOK)
		data, _ := decodeBody(t, w)["data"].(map[string]any) //nolint:errcheck // checked below
		if data["value"] != "cached" || data["id"] != float64(42) || data["slot_number"] != float64(1) {
			t.Errorf("data = %v, want cached reading 42", data)
		}
	})

	t.Run("miss falls back to database", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/data/2", "", env.userToken)
		assertStatus(t, w, http.StatusOK)
		data, _ := decodeBody(t, w)["data"].(map[string]any) //nolint:errcheck // checked below
		if data["value"] != "20" {
			t.Errorf("data = %v, want stored 20", data)
		}
	})

	t.Run("all merges cache and database", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/data", "", env.userToken)
		assertStatus(t, w, http.StatusOK)
		data, _ := decodeBody(t, w)["data"].(map[string]any)         //nolint:errcheck // checked below
		if v := data["1"].(map[string]any)["value"]; v != "cached" { //nolint:errcheck // test
			t.Errorf("slot 1 value = %v, want cached", v)
		}
		if v := data["2"].(map[string]any)["value"]; v != "20" { //nolint:errcheck // test
			t.Errorf("slot 2 value = %v, want 20", v)
		}
	})

	t.Run("cache error falls back to database", func(t *testing.T) {
		env.cache.getErr = errors.New("redis down")
		defer func() { env.cache.getErr = nil }()

		w := env.do(t, http.MethodGet, "/api/data/1", "", env.userToken)
		assertStatus(t, w, http.StatusOK)
		data, _ := decodeBody(t, w)["data"].(map[string]any) //nolint:errcheck // checked below
		if data["value"] != "10" {
			t.Errorf("data = %v, want stored 10", data)
		}
	})

	if env.cache.reads == 0 {
		t.Error("cache was never read")
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	env.createSlot(t, slot.Slot{SlotNumber: 1, Type: slot.TypeValue, Name: "Temp"})

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := range 5 {
		if _, err := env.readings.Append(context.Background(), 1, fmt.Sprint(i), base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"default", "", 5},
		{"limit", "?limit=2", 2},
		{"bad limit", "?limit=x", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/data/1/history"+tt.query, "", env.userToken)
			assertStatus(t, w, http.StatusOK)
			data, _ := decodeBody(t, w)["data"].([]any) //nolint:errcheck // checked below
			if len(data) != tt.want {
				t.Fatalf("history = %d, want %d", len(data), tt.want)
			}
			if v := data[0].(map[string]any)["value"]; v != "4" { //nolint:errcheck // test
				t.Errorf("newest = %v, want 4", v)
			}
		})
	}
}

func TestExportHistory(t *testing.T) {
	env := newTestEnv(t)
	env.createSlot(t, slot.Slot{SlotNumber: 1, Type: slot.TypeValue, Name: "Temp", Unit: "C"})

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, v := range []string{"20.5", "offline", "22"} {
		if _, err := env.readings.Append(context.Background(), 1, v, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	w := env.do(t, http.MethodGet, "/api/data/1/export", "", env.userToken)
	assertStatus(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Content-Type = %q", ct)
	}

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close() //nolint:errcheck // test cleanup

	rows, err := f.GetRows(historySheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
	if rows[0][0] != historyHeaders[0] {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][3] != "22" || rows[2][3] != "offline" {
		t.Errorf("values = %q, %q", rows[1][3], rows[2][3])
	}
	if rows[1][2] != "Temp" || rows[1][4] != "C" {
		t.Errorf("row = %v", rows[1])
	}

	assertStatus(t, env.do(t, http.MethodGet, "/api/data/2/export", "", env.userToken), http.StatusNotFound)
}

func TestBuildHistoryWorkbook_Empty(t *testing.T) {
	b, err := buildHistoryWorkbook(&slot.Slot{SlotNumber: 1, Name: "Temp"}, []telemetry.Reading{})
	if err != nil {
		t.Fatalf("buildHistoryWorkbook: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close() //nolint:errcheck // test cleanup

	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != historySheet {
		t.Errorf("sheets = %v, want [%s]", sheets, historySheet)
	}
}

func TestIntFromJSON(t *testing.T) {
	tests := []struct {
		in   any
		want int
		ok   bool
	}{
		{float64(3), 3, true},
		{"12", 12, true},
		{" 7 ", 7, true},
		{2.5, 0, false},
		{"x", 0, false},
		{true, 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			got, ok := intFromJSON(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("intFromJSON(%v) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}
