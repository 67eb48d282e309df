package bridge

import (
	"context"
	"fmt"
	"strconv"

	"github.com/julienar/peblar-bridge/internal/peblar"
)

// Entity descriptions bind an entity key to a read accessor over a
// coordinator snapshot and, for writable entities, a write accessor against
// the charger client. The tables below are the single source of truth for
// what the bridge exposes; platforms iterate them at registration time.

// SelectDescription describes a select entity backed by the user
// configuration.
type SelectDescription struct {
	Key     string
	Name    string
	Options []string

	// CurrentFn returns the selected option, or "" when the underlying
	// value is absent or unsupported by the firmware.
	CurrentFn func(peblar.UserConfiguration) string

	// SelectFn applies the chosen option on the charger.
	SelectFn func(context.Context, *peblar.Client, string) error
}

// SensorDescription describes a read-only sensor backed by meter telemetry.
type SensorDescription struct {
	Key         string
	Name        string
	DeviceClass string
	StateClass  string
	Unit        string
	ValueFn     func(peblar.Meters) string
}

// SwitchDescription describes a boolean setting backed by the user
// configuration.
type SwitchDescription struct {
	Key    string
	Name   string
	IsOnFn func(peblar.UserConfiguration) bool
	SetFn  func(context.Context, *peblar.Client, bool) error
}

// NumberDescription describes a numeric setting backed by the user
// configuration.
type NumberDescription struct {
	Key     string
	Name    string
	Unit    string
	Min     int64
	Max     int64
	ValueFn func(peblar.UserConfiguration) string
	SetFn   func(context.Context, *peblar.Client, int64) error
}

// ButtonDescription describes a stateless action.
type ButtonDescription struct {
	Key         string
	Name        string
	DeviceClass string
	PressFn     func(context.Context, *peblar.Client) error
}

var selectDescriptions = []SelectDescription{
	{
		Key:  "smart_charging",
		Name: "Smart charging",
		Options: []string{
			string(peblar.SmartChargingDefault),
			string(peblar.SmartChargingFastSolar),
			string(peblar.SmartChargingPureSolar),
			string(peblar.SmartChargingScheduled),
			string(peblar.SmartChargingSmart),
		},
		CurrentFn: func(uc peblar.UserConfiguration) string {
			if uc.SmartChargingMode == nil {
				return ""
			}
			return string(*uc.SmartChargingMode)
		},
		SelectFn: func(ctx context.Context, client *peblar.Client, option string) error {
			return client.SetSmartChargingMode(ctx, peblar.SmartChargingMode(option))
		},
	},
}

var sensorDescriptions = []SensorDescription{
	{
		Key:         "power_total",
		Name:        "Power",
		DeviceClass: "power",
		StateClass:  "measurement",
		Unit:        "W",
		ValueFn:     func(m peblar.Meters) string { return strconv.FormatInt(m.PowerTotal, 10) },
	},
	{
		Key:         "power_phase_1",
		Name:        "Power phase 1",
		DeviceClass: "power",
		StateClass:  "measurement",
		Unit:        "W",
		ValueFn:     func(m peblar.Meters) string { return strconv.FormatInt(m.PowerPhase1, 10) },
	},
	{
		Key:         "power_phase_2",
		Name:        "Power phase 2",
		DeviceClass: "power",
		StateClass:  "measurement",
		Unit:        "W",
		ValueFn:     func(m peblar.Meters) string { return strconv.FormatInt(m.PowerPhase2, 10) },
	},
	{
		Key:         "power_phase_3",
		Name:        "Power phase 3",
		DeviceClass: "power",
		StateClass:  "measurement",
		Unit:        "W",
		ValueFn:     func(m peblar.Meters) string { return strconv.FormatInt(m.PowerPhase3, 10) },
	},
	{
		Key:         "current_total",
		Name:        "Current",
		DeviceClass: "current",
		StateClass:  "measurement",
		Unit:        "A",
		ValueFn: func(m peblar.Meters) string {
			total := m.CurrentPhase1 + m.CurrentPhase2 + m.CurrentPhase3
			return fmt.Sprintf("%.3f", float64(total)/1000)
		},
	},
	{
		Key:         "energy_session",
		Name:        "Session energy",
		DeviceClass: "energy",
		StateClass:  "total_increasing",
		Unit:        "Wh",
		ValueFn:     func(m peblar.Meters) string { return strconv.FormatInt(m.EnergySession, 10) },
	},
	{
		Key:         "energy_total",
		Name:        "Lifetime energy",
		DeviceClass: "energy",
		StateClass:  "total_increasing",
		Unit:        "Wh",
		ValueFn:     func(m peblar.Meters) string { return strconv.FormatInt(m.EnergyTotal, 10) },
	},
	{
		Key:     "cp_state",
		Name:    "Control pilot state",
		ValueFn: func(m peblar.Meters) string { return m.CPState },
	},
}

var switchDescriptions = []SwitchDescription{
	{
		Key:    "force_single_phase",
		Name:   "Force single phase",
		IsOnFn: func(uc peblar.UserConfiguration) bool { return uc.ForceSinglePhase },
		SetFn: func(ctx context.Context, client *peblar.Client, on bool) error {
			return client.SetForceSinglePhase(ctx, on)
		},
	},
}

var numberDescriptions = []NumberDescription{
	{
		Key:  "charge_current_limit",
		Name: "Charge current limit",
		Unit: "A",
		Min:  6,
		Max:  32,
		ValueFn: func(uc peblar.UserConfiguration) string {
			return strconv.FormatInt(uc.UserDefinedChargeLimit, 10)
		},
		SetFn: func(ctx context.Context, client *peblar.Client, amps int64) error {
			return client.SetChargeCurrentLimit(ctx, amps)
		},
	},
}

var buttonDescriptions = []ButtonDescription{
	{
		Key:         "reboot",
		Name:        "Reboot",
		DeviceClass: "restart",
		PressFn: func(ctx context.Context, client *peblar.Client) error {
			return client.Reboot(ctx)
		},
	},
}
