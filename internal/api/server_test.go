package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/julienar/peblar-bridge/internal/bridge"
	"github.com/julienar/peblar-bridge/internal/config"
	"github.com/julienar/peblar-bridge/internal/peblar"
	"github.com/julienar/peblar-bridge/internal/poll"
)

// newTestRuntime builds a runtime against a fake charger without the MQTT
// side, enough to exercise the HTTP handlers.
func newTestRuntime(t *testing.T) (*bridge.Runtime, *[]map[string]any) {
	t.Helper()

	var patches []map[string]any
	smartCharging := "default"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "POST /api/wlac/v1/auth/login":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok"})
		case "GET /api/wlac/v1/meters":
			json.NewEncoder(w).Encode(peblar.Meters{PowerTotal: 2300, CPState: "B"})
		case "GET /api/wlac/v1/config/user":
			json.NewEncoder(w).Encode(map[string]any{"SmartChargingMode": smartCharging})
		case "PATCH /api/wlac/v1/config/user":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			patches = append(patches, body)
			if mode, ok := body["SmartChargingMode"].(string); ok {
				smartCharging = mode
			}
		case "GET /api/wlac/v1/system/software":
			json.NewEncoder(w).Encode(peblar.Versions{Current: peblar.VersionInfo{Firmware: "1.6.1"}})
		case "POST /api/wlac/v1/system/reboot":
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	client, err := peblar.New(strings.TrimPrefix(server.URL, "http://"))
	require.NoError(t, err)
	require.NoError(t, client.Login(context.Background(), "secret"))

	logger := zap.NewNop()
	rt := &bridge.Runtime{
		Client: client,
		SystemInformation: &peblar.SystemInformation{
			ProductSerialNumber: "ABC123",
			ProductVendorName:   "Peblar",
		},
		Meter:      poll.New("meter", time.Hour, client.Meters, logger),
		UserConfig: poll.New("user_config", time.Hour, client.UserConfiguration, logger),
		Version:    poll.New("version", time.Hour, client.Versions, logger),
	}
	require.NoError(t, rt.Meter.Refresh(context.Background()))
	require.NoError(t, rt.UserConfig.Refresh(context.Background()))
	require.NoError(t, rt.Version.Refresh(context.Background()))

	return rt, &patches
}

func TestGetStatus(t *testing.T) {
	rt, _ := newTestRuntime(t)
	s := NewServer(rt, zap.NewNop(), ":0", config.AuthConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.getStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ABC123", resp.Serial)
	require.NotNil(t, resp.Meters)
	assert.Equal(t, int64(2300), resp.Meters.PowerTotal)
	require.NotNil(t, resp.UserConfig)
	require.NotNil(t, resp.UserConfig.SmartChargingMode)
	assert.Equal(t, peblar.SmartChargingDefault, *resp.UserConfig.SmartChargingMode)
	assert.Empty(t, resp.MeterError)
}

func TestGetStatusMethodNotAllowed(t *testing.T) {
	rt, _ := newTestRuntime(t)
	s := NewServer(rt, zap.NewNop(), ":0", config.AuthConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.getStatus(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetSystem(t *testing.T) {
	rt, _ := newTestRuntime(t)
	s := NewServer(rt, zap.NewNop(), ":0", config.AuthConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/system", nil)
	rec := httptest.NewRecorder()
	s.getSystem(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var info peblar.SystemInformation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, "ABC123", info.ProductSerialNumber)
}

func TestSetSmartCharging(t *testing.T) {
	rt, patches := newTestRuntime(t)
	s := NewServer(rt, zap.NewNop(), ":0", config.AuthConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/smart-charging",
		strings.NewReader(`{"mode": "pure_solar"}`))
	rec := httptest.NewRecorder()
	s.setSmartCharging(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, *patches, 1)
	assert.Equal(t, "pure_solar", (*patches)[0]["SmartChargingMode"])

	// Forced refresh already reflects the applied mode.
	data, ok := rt.UserConfig.Data()
	require.True(t, ok)
	require.NotNil(t, data.SmartChargingMode)
	assert.Equal(t, peblar.SmartChargingPureSolar, *data.SmartChargingMode)
}

func TestSetSmartChargingInvalidMode(t *testing.T) {
	rt, patches := newTestRuntime(t)
	s := NewServer(rt, zap.NewNop(), ":0", config.AuthConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/smart-charging",
		strings.NewReader(`{"mode": "turbo"}`))
	rec := httptest.NewRecorder()
	s.setSmartCharging(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, *patches)
}

func TestSetSmartChargingBadBody(t *testing.T) {
	rt, _ := newTestRuntime(t)
	s := NewServer(rt, zap.NewNop(), ":0", config.AuthConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/smart-charging",
		strings.NewReader(`{`))
	rec := httptest.NewRecorder()
	s.setSmartCharging(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReboot(t *testing.T) {
	rt, _ := newTestRuntime(t)
	s := NewServer(rt, zap.NewNop(), ":0", config.AuthConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/reboot", nil)
	rec := httptest.NewRecorder()
	s.reboot(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SuccessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
}
