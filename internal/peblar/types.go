package peblar

// AccessMode controls what the charger's local REST API permits.
type AccessMode string

const (
	AccessModeReadOnly  AccessMode = "ReadOnly"
	AccessModeReadWrite AccessMode = "ReadWrite"
)

// SmartChargingMode is one of the charging strategies the charger supports.
type SmartChargingMode string

const (
	SmartChargingDefault   SmartChargingMode = "default"
	SmartChargingFastSolar SmartChargingMode = "fast_solar"
	SmartChargingPureSolar SmartChargingMode = "pure_solar"
	SmartChargingScheduled SmartChargingMode = "scheduled"
	SmartChargingSmart     SmartChargingMode = "smart_solar"
)

// SmartChargingModes lists every mode the charger accepts, in the order the
// vendor app presents them.
var SmartChargingModes = []SmartChargingMode{
	SmartChargingDefault,
	SmartChargingFastSolar,
	SmartChargingPureSolar,
	SmartChargingScheduled,
	SmartChargingSmart,
}

func validSmartChargingMode(mode SmartChargingMode) bool {
	for _, m := range SmartChargingModes {
		if m == mode {
			return true
		}
	}
	return false
}

// SystemInformation is the charger's immutable identity, fetched once after
// login.
type SystemInformation struct {
	ProductSerialNumber string `json:"ProductSn"`
	ProductNumber       string `json:"ProductPn"`
	ProductVendorName   string `json:"ProductVendorName"`
	ProductModelName    string `json:"ProductModelName"`
	FirmwareVersion     string `json:"FirmwareVersion"`
	EthernetMACAddress  string `json:"EthernetMacAddress"`
	WLANMACAddress      string `json:"WlanMacAddress"`
	Hostname            string `json:"Hostname"`
}

// Meters is one telemetry sample from the charger's local REST API.
type Meters struct {
	CurrentPhase1 int64 `json:"CurrentPhase1"` // mA
	CurrentPhase2 int64 `json:"CurrentPhase2"`
	CurrentPhase3 int64 `json:"CurrentPhase3"`
	VoltagePhase1 int64 `json:"VoltagePhase1"` // V
	VoltagePhase2 int64 `json:"VoltagePhase2"`
	VoltagePhase3 int64 `json:"VoltagePhase3"`
	PowerPhase1   int64 `json:"PowerPhase1"` // W
	PowerPhase2   int64 `json:"PowerPhase2"`
	PowerPhase3   int64 `json:"PowerPhase3"`
	PowerTotal    int64 `json:"PowerTotal"`
	EnergySession int64 `json:"EnergySession"` // Wh
	EnergyTotal   int64 `json:"EnergyTotal"`

	// CPState is the IEC 61851 control pilot state (A..F).
	CPState string `json:"CpState"`

	// ChargeCurrentLimit is the active charging limit in mA.
	ChargeCurrentLimit       int64  `json:"ChargeCurrentLimit"`
	ChargeCurrentLimitSource string `json:"ChargeCurrentLimitSource"`
}

// UserConfiguration holds the charger-level settings a user can change.
// Pointer fields are absent when the charger does not report them, which
// happens on firmware that predates the setting.
type UserConfiguration struct {
	SmartChargingMode      *SmartChargingMode `json:"SmartChargingMode,omitempty"`
	ForceSinglePhase       bool               `json:"ForceSinglePhaseAllowed"`
	UserDefinedChargeLimit int64              `json:"UserDefinedChargeLimitCurrent"` // A
	LEDIntensity           int                `json:"LedIntensity"`
	GroundMonitoring       bool               `json:"GroundMonitoring"`
}

// VersionInfo is one firmware/customization version pair.
type VersionInfo struct {
	Firmware      string `json:"Firmware"`
	Customization string `json:"Customization"`
}

// Versions reports what the charger runs and what the vendor offers.
type Versions struct {
	Current   VersionInfo `json:"Current"`
	Available VersionInfo `json:"Available"`
}

// FirmwareUpdateAvailable reports whether the vendor offers a newer firmware
// than the one currently installed.
func (v Versions) FirmwareUpdateAvailable() bool {
	return v.Available.Firmware != "" && v.Available.Firmware != v.Current.Firmware
}
