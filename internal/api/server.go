package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	httptrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/net/http"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/julienar/peblar-bridge/internal/bridge"
	"github.com/julienar/peblar-bridge/internal/config"
	"github.com/julienar/peblar-bridge/internal/metrics"
	"github.com/julienar/peblar-bridge/internal/peblar"
)

// Server provides the local HTTP API for inspecting and controlling the
// bridge.
type Server struct {
	runtime *bridge.Runtime
	logger  *zap.Logger
	addr    string
	auth    config.AuthConfig

	httpServer *http.Server
}

// NewServer creates a new API server
func NewServer(runtime *bridge.Runtime, logger *zap.Logger, addr string, auth config.AuthConfig) *Server {
	return &Server{
		runtime: runtime,
		logger:  logger,
		addr:    addr,
		auth:    auth,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	// Use Datadog HTTP tracing middleware
	mux := httptrace.NewServeMux()
	mux.HandleFunc("/api/status", s.getStatus)
	mux.HandleFunc("/api/system", s.getSystem)
	mux.HandleFunc("/api/smart-charging", s.setSmartCharging)
	mux.HandleFunc("/api/reboot", s.reboot)
	mux.Handle("/metrics", metrics.Handler())

	var handler http.Handler = mux
	handler = s.securityMiddleware(handler)

	// Add Basic Auth middleware if enabled
	if s.auth.Enabled {
		handler = s.basicAuthMiddleware(handler)
		s.logger.Info("API Authentication enabled")
	}

	s.httpServer = &http.Server{Addr: s.addr, Handler: handler}

	s.logger.Info("Starting API server", zap.String("addr", s.addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Response types
type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type StatusResponse struct {
	Serial       string                    `json:"serial"`
	Meters       *peblar.Meters            `json:"meters,omitempty"`
	UserConfig   *peblar.UserConfiguration `json:"user_config,omitempty"`
	Versions     *peblar.Versions          `json:"versions,omitempty"`
	MeterError   string                    `json:"meter_error,omitempty"`
	ConfigError  string                    `json:"config_error,omitempty"`
	VersionError string                    `json:"version_error,omitempty"`
}

type SetSmartChargingRequest struct {
	Mode string `json:"mode"`
}

// getStatus returns the last snapshots of all three coordinators
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := StatusResponse{
		Serial: s.runtime.SystemInformation.ProductSerialNumber,
	}

	if meters, ok := s.runtime.Meter.Data(); ok {
		resp.Meters = meters
	}
	if err := s.runtime.Meter.LastError(); err != nil {
		resp.MeterError = err.Error()
	}

	if uc, ok := s.runtime.UserConfig.Data(); ok {
		resp.UserConfig = uc
	}
	if err := s.runtime.UserConfig.LastError(); err != nil {
		resp.ConfigError = err.Error()
	}

	if versions, ok := s.runtime.Version.Data(); ok {
		resp.Versions = versions
	}
	if err := s.runtime.Version.LastError(); err != nil {
		resp.VersionError = err.Error()
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// getSystem returns the immutable system information fetched at setup
func (s *Server) getSystem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, s.runtime.SystemInformation)
}

// setSmartCharging selects a smart charging mode
func (s *Server) setSmartCharging(w http.ResponseWriter, r *http.Request) {
	span, ctx := tracer.StartSpanFromContext(r.Context(), "api.set_smart_charging")
	defer span.Finish()

	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req SetSmartChargingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	span.SetTag("mode", req.Mode)

	if err := s.runtime.SelectOption(ctx, "smart_charging", req.Mode); err != nil {
		status := http.StatusInternalServerError
		if req.Mode == "" || !isKnownMode(req.Mode) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("Smart charging mode set to %s", req.Mode),
	})
}

// reboot restarts the charger
func (s *Server) reboot(w http.ResponseWriter, r *http.Request) {
	span, ctx := tracer.StartSpanFromContext(r.Context(), "api.reboot")
	defer span.Finish()

	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.runtime.Client.Reboot(ctx); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Charger is rebooting",
	})
}

func isKnownMode(mode string) bool {
	for _, m := range peblar.SmartChargingModes {
		if string(m) == mode {
			return true
		}
	}
	return false
}

// Helper functions
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.logger.Warn("API error", zap.String("error", message), zap.Int("status", status))
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
