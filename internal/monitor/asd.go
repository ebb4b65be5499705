package monitor

import (
	"encoding/binary"
	"fmt"
	"math"

	karalabehid "github.com/karalabe/hid"
	"github.com/rs/zerolog/log"
)

// Apple Studio Display brightness is controlled through HID feature reports
// on a dedicated USB interface. The hardware works in nits; this backend
// exposes a 0-100 percent scale.
const (
	asdVendorID  uint16 = 0x05ac
	asdProductID uint16 = 0x1114

	asdBrightnessInterface = 0x07
	asdReportID       byte = 0x01
	asdReportSize          = 7

	asdMinNits uint32 = 400
	asdMaxNits uint32 = 60000
)

// asdDevice is one Apple Studio Display brightness interface. Implements Device.
type asdDevice struct {
	device karalabehid.Device
	info   DeviceInfo
}

var _ Device = (*asdDevice)(nil)

// EnumerateAppleStudioDisplays opens the brightness interface of every
// connected Apple Studio Display.
func EnumerateAppleStudioDisplays() ([]Device, error) {
	found, err := karalabehid.Enumerate(asdVendorID, asdProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate hid devices: %w", err)
	}

	var devices []Device
	for _, info := range found {
		if info.Interface != asdBrightnessInterface {
			continue
		}
		device, err := info.Open()
		if err != nil {
			log.Warn().Err(err).Str("serial", info.Serial).Msg("Failed to open Apple Studio Display")
			continue
		}
		devices = append(devices, &asdDevice{
			device: device,
			info: DeviceInfo{
				ID:      info.Serial,
				Name:    info.Product,
				Backend: "asd",
			},
		})
	}
	return devices, nil
}

// Brightness reads the current level as a percentage.
func (d *asdDevice) Brightness() (uint32, error) {
	data := make([]byte, asdReportSize)
	data[0] = asdReportID

	if _, err := d.device.GetFeatureReport(data); err != nil {
		return 0, fmt.Errorf("failed to get feature report: %w", err)
	}

	nits := binary.LittleEndian.Uint32(data[1:5])
	return nitsToPercent(nits), nil
}

// SetBrightness writes a percentage level to the hardware.
func (d *asdDevice) SetBrightness(level uint32) error {
	data := make([]byte, asdReportSize)
	data[0] = asdReportID
	binary.LittleEndian.PutUint32(data[1:5], percentToNits(level))

	if _, err := d.device.SendFeatureReport(data); err != nil {
		return fmt.Errorf("failed to send feature report: %w", err)
	}
	return nil
}

// Bounds returns the percent scale this backend exposes.
func (d *asdDevice) Bounds() (min, max uint32) {
	return 0, 100
}

func (d *asdDevice) Close() error {
	return d.device.Close()
}

func (d *asdDevice) Info() DeviceInfo {
	return d.info
}

// nitsToPercent converts a hardware nits value to a percentage, clamping
// out-of-range readings. Rounded so that it round-trips with percentToNits.
func nitsToPercent(nits uint32) uint32 {
	nits = clampNits(nits)
	percent := float64(nits-asdMinNits) / float64(asdMaxNits-asdMinNits) * 100
	return uint32(math.Round(percent))
}

// percentToNits converts a percentage to the hardware nits value.
func percentToNits(percent uint32) uint32 {
	if percent > 100 {
		percent = 100
	}
	nits := uint32(float64(percent)*float64(asdMaxNits-asdMinNits)/100) + asdMinNits
	return clampNits(nits)
}

func clampNits(nits uint32) uint32 {
	if nits < asdMinNits {
		return asdMinNits
	}
	if nits > asdMaxNits {
		return asdMaxNits
	}
	return nits
}
