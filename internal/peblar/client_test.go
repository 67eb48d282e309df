package peblar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "hunter2"

// newTestCharger runs a fake charger that requires login before any other
// call and records every request it sees.
func newTestCharger(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *[]string) {
	t.Helper()

	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.Path)

		if r.URL.Path == "/api/wlac/v1/auth/login" {
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body["Password"] != testPassword {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok"})
			w.WriteHeader(http.StatusOK)
			return
		}

		if c, err := r.Cookie("session"); err != nil || c.Value != "ok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := New(strings.TrimPrefix(server.URL, "http://"))
	require.NoError(t, err)

	return client, &requests
}

func TestLogin(t *testing.T) {
	client, _ := newTestCharger(t, func(w http.ResponseWriter, r *http.Request) {})

	err := client.Login(context.Background(), testPassword)
	assert.NoError(t, err)
}

func TestLoginWrongPassword(t *testing.T) {
	client, _ := newTestCharger(t, func(w http.ResponseWriter, r *http.Request) {})

	err := client.Login(context.Background(), "wrong")

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
}

func TestLoginConnectionRefused(t *testing.T) {
	client, err := New("127.0.0.1:1")
	require.NoError(t, err)

	err = client.Login(context.Background(), testPassword)

	var connErr *ConnError
	assert.ErrorAs(t, err, &connErr)
}

func TestCallsRequireLogin(t *testing.T) {
	client, _ := newTestCharger(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := client.SystemInformation(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = client.Meters(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	err = client.SetSmartChargingMode(context.Background(), SmartChargingDefault)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestSystemInformation(t *testing.T) {
	info := SystemInformation{
		ProductSerialNumber: "ABC123",
		ProductNumber:       "6004-2300-1000",
		ProductVendorName:   "Peblar",
		ProductModelName:    "Peblar Home",
		FirmwareVersion:     "1.6.1",
		EthernetMACAddress:  "aa:bb:cc:dd:ee:ff",
		WLANMACAddress:      "11:22:33:44:55:66",
	}

	client, _ := newTestCharger(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/wlac/v1/system/info", r.URL.Path)
		json.NewEncoder(w).Encode(info)
	})
	require.NoError(t, client.Login(context.Background(), testPassword))

	got, err := client.SystemInformation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &info, got)
}

func TestMeters(t *testing.T) {
	client, _ := newTestCharger(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/wlac/v1/meters", r.URL.Path)
		json.NewEncoder(w).Encode(Meters{
			PowerTotal:    11040,
			EnergySession: 7300,
			CPState:       "C",
		})
	})
	require.NoError(t, client.Login(context.Background(), testPassword))

	got, err := client.Meters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(11040), got.PowerTotal)
	assert.Equal(t, "C", got.CPState)
}

func TestUserConfigurationAbsentSmartCharging(t *testing.T) {
	client, _ := newTestCharger(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ForceSinglePhaseAllowed": true, "LedIntensity": 80}`))
	})
	require.NoError(t, client.Login(context.Background(), testPassword))

	got, err := client.UserConfiguration(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got.SmartChargingMode)
	assert.True(t, got.ForceSinglePhase)
}

func TestSetSmartChargingMode(t *testing.T) {
	var received map[string]string

	client, requests := newTestCharger(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	})
	require.NoError(t, client.Login(context.Background(), testPassword))

	err := client.SetSmartChargingMode(context.Background(), SmartChargingPureSolar)
	require.NoError(t, err)

	assert.Equal(t, "pure_solar", received["SmartChargingMode"])
	assert.Contains(t, *requests, "PATCH /api/wlac/v1/config/user")
}

func TestSetSmartChargingModeInvalid(t *testing.T) {
	client, requests := newTestCharger(t, func(w http.ResponseWriter, r *http.Request) {})
	require.NoError(t, client.Login(context.Background(), testPassword))

	err := client.SetSmartChargingMode(context.Background(), SmartChargingMode("turbo"))

	assert.ErrorIs(t, err, ErrInvalidSmartChargingMode)
	// Only the login request should have reached the charger.
	assert.Len(t, *requests, 1)
}

func TestEnableRESTAPI(t *testing.T) {
	var received map[string]any

	client, _ := newTestCharger(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/wlac/v1/config/api", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	})
	require.NoError(t, client.Login(context.Background(), testPassword))

	err := client.EnableRESTAPI(context.Background(), AccessModeReadWrite)
	require.NoError(t, err)

	assert.Equal(t, true, received["Enable"])
	assert.Equal(t, "ReadWrite", received["AccessMode"])
}

func TestVersions(t *testing.T) {
	client, _ := newTestCharger(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Versions{
			Current:   VersionInfo{Firmware: "1.6.1"},
			Available: VersionInfo{Firmware: "1.6.2"},
		})
	})
	require.NoError(t, client.Login(context.Background(), testPassword))

	got, err := client.Versions(context.Background())
	require.NoError(t, err)
	assert.True(t, got.FirmwareUpdateAvailable())
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized is auth error",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				var authErr *AuthError
				assert.ErrorAs(t, err, &authErr)
			},
		},
		{
			name:   "forbidden is auth error",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				var authErr *AuthError
				assert.ErrorAs(t, err, &authErr)
			},
		},
		{
			name:   "server error is api error",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
			},
		},
		{
			name:   "unprocessable is api error",
			status: http.StatusUnprocessableEntity,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				assert.ErrorAs(t, err, &apiErr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestCharger(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			require.NoError(t, client.Login(context.Background(), testPassword))

			_, err := client.Meters(context.Background())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestRebootInvalidatesSession(t *testing.T) {
	client, _ := newTestCharger(t, func(w http.ResponseWriter, r *http.Request) {})
	require.NoError(t, client.Login(context.Background(), testPassword))

	require.NoError(t, client.Reboot(context.Background()))

	_, err := client.Meters(context.Background())
	assert.True(t, errors.Is(err, ErrNotLoggedIn))
}
