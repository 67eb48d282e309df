package bridge

import (
	"github.com/julienar/peblar-bridge/internal/peblar"
)

// Home Assistant MQTT discovery payloads. The abbreviated JSON keys are the
// ones the discovery schema defines.

type discoveryDevice struct {
	Identifiers      []string   `json:"ids"`
	Connections      [][]string `json:"cns,omitempty"`
	Manufacturer     string     `json:"mf"`
	Model            string     `json:"mdl"`
	ModelID          string     `json:"mdl_id,omitempty"`
	Name             string     `json:"name"`
	SerialNumber     string     `json:"sn"`
	SoftwareVersion  string     `json:"sw,omitempty"`
	ConfigurationURL string     `json:"cu,omitempty"`
}

type discoveryConfig struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"uniq_id"`
	StateTopic        string          `json:"stat_t,omitempty"`
	CommandTopic      string          `json:"cmd_t,omitempty"`
	AvailabilityTopic string          `json:"avty_t"`
	DeviceClass       string          `json:"dev_cla,omitempty"`
	StateClass        string          `json:"stat_cla,omitempty"`
	UnitOfMeasurement string          `json:"unit_of_meas,omitempty"`
	EntityCategory    string          `json:"ent_cat,omitempty"`
	Options           []string        `json:"options,omitempty"`
	PayloadOn         string          `json:"pl_on,omitempty"`
	PayloadOff        string          `json:"pl_off,omitempty"`
	PayloadPress      string          `json:"pl_prs,omitempty"`
	Min               *int64          `json:"min,omitempty"`
	Max               *int64          `json:"max,omitempty"`
	Device            discoveryDevice `json:"dev"`
}

// deviceRecord builds the discovery device block. It is derived solely from
// the system information snapshot fetched once at setup; the firmware
// version comes from the version coordinator's first refresh.
func deviceRecord(info *peblar.SystemInformation, firmware, name string) discoveryDevice {
	if name == "" {
		name = "Peblar EV Charger"
	}

	dev := discoveryDevice{
		Identifiers:     []string{domain + "_" + info.ProductSerialNumber},
		Manufacturer:    info.ProductVendorName,
		Model:           info.ProductModelName,
		ModelID:         info.ProductNumber,
		Name:            name,
		SerialNumber:    info.ProductSerialNumber,
		SoftwareVersion: firmware,
	}

	if info.EthernetMACAddress != "" {
		dev.Connections = append(dev.Connections, []string{"mac", info.EthernetMACAddress})
	}
	if info.WLANMACAddress != "" {
		dev.Connections = append(dev.Connections, []string{"mac", info.WLANMACAddress})
	}

	return dev
}
