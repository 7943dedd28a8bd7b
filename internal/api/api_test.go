package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/micro-nova/tinyi2c/internal/api"
	"github.com/micro-nova/tinyi2c/internal/bus"
	"github.com/micro-nova/tinyi2c/internal/i2csim"
	"github.com/micro-nova/tinyi2c/internal/trace"
	"github.com/micro-nova/tinyi2c/internal/twi"
	"periph.io/x/conn/v3/physic"
)

// newTestServer spins up a full router on simulated peripherals.
func newTestServer(t *testing.T, devs ...*i2csim.Device) (*httptest.Server, *bus.Bus) {
	t.Helper()

	hub := trace.NewHub()
	m := twi.NewTWIM(i2csim.NewTWIM(i2csim.NewBus(devs...)), 20*physic.MegaHertz, nil)
	b := bus.New(m, bus.Options{OpsPerSec: -1, Trace: hub})
	if err := b.Init(context.Background()); err != nil {
		t.Fatalf("bus.Init: %v", err)
	}

	srv := httptest.NewServer(api.NewRouter(b, hub))
	t.Cleanup(srv.Close)
	return srv, b
}

// do is a convenience helper for making requests to the test server.
func do(t *testing.T, srv *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("NewRequest %s %s: %v", method, path, err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do %s %s: %v", method, path, err)
	}
	return resp
}

// decodeJSON reads and decodes a JSON response body into v.
func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
}

// requireStatus fails the test if the response status doesn't match.
func requireStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, expected, body)
	}
}

func TestScan(t *testing.T) {
	srv, _ := newTestServer(t, i2csim.NewDevice(0x21), i2csim.NewDevice(0x50))

	resp := do(t, srv, "GET", "/api/scan", "")
	requireStatus(t, resp, http.StatusOK)

	var got api.ScanResponse
	decodeJSON(t, resp, &got)
	if len(got.Devices) != 2 || got.Devices[0] != 0x21 || got.Devices[1] != 0x50 {
		t.Errorf("devices = %v, want [33 80]", got.Devices)
	}
}

func TestTx_WriteThenRead(t *testing.T) {
	dev := i2csim.NewDevice(0x50)
	dev.SetReg(0x08, 0x12)
	dev.SetReg(0x09, 0x34)
	srv, _ := newTestServer(t, dev)

	resp := do(t, srv, "POST", "/api/tx", `{"addr":80,"write":[8],"read":2}`)
	requireStatus(t, resp, http.StatusOK)

	var got api.TxResponse
	decodeJSON(t, resp, &got)
	if len(got.Read) != 2 || got.Read[0] != 0x12 || got.Read[1] != 0x34 {
		t.Errorf("read = %v, want [18 52]", got.Read)
	}
}

func TestTx_Write(t *testing.T) {
	dev := i2csim.NewDevice(0x50)
	srv, _ := newTestServer(t, dev)

	resp := do(t, srv, "POST", "/api/tx", `{"addr":80,"write":[1,255]}`)
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	if got := dev.Reg(0x01); got != 0xff {
		t.Errorf("reg 0x01 = 0x%02x, want 0xff", got)
	}
}

func TestTx_Errors(t *testing.T) {
	dev := i2csim.NewDevice(0x50)
	dev.SetNACKAfter(1)
	srv, _ := newTestServer(t, dev)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"invalid json", `{`, http.StatusBadRequest, "BAD_REQUEST"},
		{"address range", `{"addr":128}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"byte range", `{"addr":80,"write":[256]}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"read range", `{"addr":80,"read":1000}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"no device", `{"addr":66,"write":[0]}`, http.StatusNotFound, "NO_DEVICE"},
		{"nack", `{"addr":80,"write":[0,1]}`, http.StatusConflict, "NACK"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, "POST", "/api/tx", tt.body)
			requireStatus(t, resp, tt.status)
			var got api.Error
			decodeJSON(t, resp, &got)
			if got.Code != tt.code {
				t.Errorf("error code = %q, want %q", got.Code, tt.code)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, srv, "OPTIONS", "/api/tx", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestSSESubscribe(t *testing.T) {
	srv, b := newTestServer(t, i2csim.NewDevice(0x50))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/subscribe", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	// The subscription exists once the headers arrive.
	if err := b.Tx(context.Background(), 0x50, []byte{0x00}, nil); err != nil {
		t.Fatalf("Tx: %v", err)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var e struct {
			Kind string `json:"kind"`
			Addr *int   `json:"addr"`
			Dir  string `json:"dir"`
			Ack  bool   `json:"ack"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e); err != nil {
			t.Fatalf("SSE data is not valid JSON: %v", err)
		}
		if e.Kind != "start" || e.Addr == nil || *e.Addr != 0x50 || e.Dir != "write" || !e.Ack {
			t.Errorf("first event = %+v, want acknowledged write start at 0x50", e)
		}
		return
	}
	t.Fatal("no SSE data line received")
}
