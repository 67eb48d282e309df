package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	mode    string
	apiAddr string
)

const defaultAPIAddr = "http://localhost:8080"

// API response types
type apiStatusResponse struct {
	Serial string `json:"serial"`
	Meters *struct {
		PowerTotal    int64  `json:"PowerTotal"`
		EnergySession int64  `json:"EnergySession"`
		CPState       string `json:"CpState"`
	} `json:"meters"`
	UserConfig *struct {
		SmartChargingMode *string `json:"SmartChargingMode"`
	} `json:"user_config"`
	Versions *struct {
		Current struct {
			Firmware string `json:"Firmware"`
		} `json:"Current"`
	} `json:"versions"`
	MeterError string `json:"meter_error"`
}

type apiSuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error string `json:"error"`
}

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Control charger operations",
	Long:  `Send control commands to the charger through the running bridge.`,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Get charger status",
	Long:  `Display the charger's latest telemetry and configuration.`,
	RunE:  getStatus,
}

var setModeCmd = &cobra.Command{
	Use:   "set-mode",
	Short: "Set the smart charging mode",
	Long:  `Select a smart charging mode (default, fast_solar, pure_solar, scheduled, smart_solar).`,
	RunE:  setSmartChargingMode,
}

var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Reboot the charger",
	Long:  `Ask the charger to restart. The bridge reconnects automatically.`,
	RunE:  rebootCharger,
}

func init() {
	rootCmd.AddCommand(controlCmd)

	controlCmd.AddCommand(statusCmd)
	controlCmd.AddCommand(setModeCmd)
	controlCmd.AddCommand(rebootCmd)

	// Add global API address flag
	controlCmd.PersistentFlags().StringVar(&apiAddr, "api", defaultAPIAddr, "API server address")

	setModeCmd.Flags().StringVarP(&mode, "mode", "m", "", "smart charging mode (required)")
	setModeCmd.MarkFlagRequired("mode")
}

func getStatus(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/api/status", apiAddr)

	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to API server: %w\nMake sure the service is running with: peblar-bridge run", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp apiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			return fmt.Errorf("API error: %s", errResp.Error)
		}
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var status apiStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERIAL\tPOWER\tSESSION\tCP\tMODE\tFIRMWARE")
	fmt.Fprintln(w, "------\t-----\t-------\t--\t----\t--------")

	power, session, cpState := "-", "-", "-"
	if status.Meters != nil {
		power = fmt.Sprintf("%dW", status.Meters.PowerTotal)
		session = fmt.Sprintf("%dWh", status.Meters.EnergySession)
		cpState = status.Meters.CPState
	}

	chargeMode := "-"
	if status.UserConfig != nil && status.UserConfig.SmartChargingMode != nil {
		chargeMode = *status.UserConfig.SmartChargingMode
	}

	firmware := "-"
	if status.Versions != nil {
		firmware = status.Versions.Current.Firmware
	}

	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		status.Serial,
		power,
		session,
		cpState,
		chargeMode,
		firmware,
	)
	w.Flush()

	if status.MeterError != "" {
		fmt.Printf("\nWarning: last telemetry poll failed: %s\n", status.MeterError)
	}

	return nil
}

func setSmartChargingMode(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/api/smart-charging", apiAddr)

	reqBody := map[string]string{"mode": mode}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to connect to API server: %w\nMake sure the service is running with: peblar-bridge run", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp apiErrorResponse
		body, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(body, &errResp); err == nil {
			return fmt.Errorf("API error: %s", errResp.Error)
		}
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var successResp apiSuccessResponse
	if err := json.NewDecoder(resp.Body).Decode(&successResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("✓ %s\n", successResp.Message)
	return nil
}

func rebootCharger(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/api/reboot", apiAddr)

	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to API server: %w\nMake sure the service is running with: peblar-bridge run", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp apiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			return fmt.Errorf("API error: %s", errResp.Error)
		}
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var successResp apiSuccessResponse
	if err := json.NewDecoder(resp.Body).Decode(&successResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("✓ %s\n", successResp.Message)
	return nil
}
