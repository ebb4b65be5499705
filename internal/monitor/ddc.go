package monitor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// DDC/CI over I2C, per VESA DDC/CI 1.1.
const (
	i2cSlaveIoctl = 0x0703
	ddcAddr       = 0x37
	ddcHostAddr   = 0x51

	vcpBrightness byte = 0x10

	// The spec requires a settle delay between bus transactions; commands
	// issued back to back are silently ignored by many monitors.
	ddcGetDelay = 40 * time.Millisecond
	ddcSetDelay = 50 * time.Millisecond
)

var (
	// ErrDDCNoReply is returned when the monitor does not answer a request.
	ErrDDCNoReply = errors.New("no ddc reply")
	// ErrDDCChecksum is returned when a reply fails checksum validation.
	ErrDDCChecksum = errors.New("invalid ddc checksum")
	// ErrDDCBadReply is returned when a reply is structurally invalid.
	ErrDDCBadReply = errors.New("bad ddc reply")
)

// ddcDevice is an open DDC/CI channel to one monitor. Implements Device.
type ddcDevice struct {
	f    *os.File
	info DeviceInfo
	max  uint32
	next time.Time // earliest time the bus may be used again
}

var _ Device = (*ddcDevice)(nil)

// drmClassPath is a variable so tests can point enumeration at a fixture tree.
var drmClassPath = "/sys/class/drm"

// EnumerateDDC discovers connected DRM connectors exposing a DDC channel and
// opens each one that answers a brightness request. Monitors that do not
// speak DDC/CI are skipped.
func EnumerateDDC() ([]Device, error) {
	entries, err := os.ReadDir(drmClassPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list drm connectors: %w", err)
	}

	var devices []Device
	for _, entry := range entries {
		// Connectors are named card<N>-<type>-<M>; plain card<N> is the GPU.
		if !strings.HasPrefix(entry.Name(), "card") || !strings.Contains(entry.Name(), "-") {
			continue
		}

		connector := filepath.Join(drmClassPath, entry.Name())
		status, err := os.ReadFile(filepath.Join(connector, "status"))
		if err != nil || strings.TrimSpace(string(status)) != "connected" {
			continue
		}

		bus, ok := connectorI2CBus(connector)
		if !ok {
			continue
		}

		name := connectorDisplayName(connector)
		device, err := openDDC(bus, name)
		if err != nil {
			log.Debug().Err(err).Int("bus", bus).Str("connector", entry.Name()).
				Msg("Connector does not answer DDC/CI, skipping")
			continue
		}

		log.Debug().Int("bus", bus).Str("name", device.info.Name).Msg("DDC/CI display opened")
		devices = append(devices, device)
	}
	return devices, nil
}

// connectorI2CBus resolves the I2C bus number behind a DRM connector's ddc link.
func connectorI2CBus(connector string) (int, bool) {
	target, err := os.Readlink(filepath.Join(connector, "ddc"))
	if err != nil {
		return 0, false
	}
	s, ok := strings.CutPrefix(filepath.Base(target), "i2c-")
	if !ok {
		return 0, false
	}
	bus, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return bus, true
}

// connectorDisplayName reads the monitor name from the connector's EDID,
// falling back to the connector name itself.
func connectorDisplayName(connector string) string {
	edid, err := os.ReadFile(filepath.Join(connector, "edid"))
	if err == nil {
		if name := parseEDIDName(edid); name != "" {
			return name
		}
	}
	return filepath.Base(connector)
}

// parseEDIDName extracts the display product name (descriptor tag 0xFC) from
// an EDID blob. Returns "" if no name descriptor is present.
func parseEDIDName(edid []byte) string {
	if len(edid) < 128 {
		return ""
	}
	for _, offset := range []int{54, 72, 90, 108} {
		desc := edid[offset : offset+18]
		// Display descriptors start with a zero pixel clock; tag is byte 3.
		if desc[0] != 0 || desc[1] != 0 || desc[3] != 0xFC {
			continue
		}
		name := string(desc[5:18])
		if i := strings.IndexByte(name, '\n'); i >= 0 {
			name = name[:i]
		}
		return strings.TrimSpace(name)
	}
	return ""
}

// openDDC opens an I2C bus, addresses the DDC/CI slave and probes the
// brightness VCP to confirm the monitor supports it.
func openDDC(bus int, name string) (*ddcDevice, error) {
	path := "/dev/i2c-" + strconv.Itoa(bus)
	f, err := os.OpenFile(path, os.O_RDWR, os.ModeDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), i2cSlaveIoctl, ddcAddr); errno != 0 {
		_ = f.Close()
		return nil, fmt.Errorf("failed to address ddc slave on %s: %w", path, errno)
	}

	d := &ddcDevice{
		f: f,
		info: DeviceInfo{
			ID:      path,
			Name:    name,
			Backend: "ddc",
		},
	}

	_, max, err := d.getVCP(vcpBrightness)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("brightness probe failed on %s: %w", path, err)
	}
	d.max = uint32(max)
	return d, nil
}

// Brightness reads the current level over DDC/CI.
func (d *ddcDevice) Brightness() (uint32, error) {
	cur, _, err := d.getVCP(vcpBrightness)
	if err != nil {
		return 0, err
	}
	return uint32(cur), nil
}

// SetBrightness writes a level over DDC/CI.
func (d *ddcDevice) SetBrightness(level uint32) error {
	if level > 0xFFFF {
		level = 0xFFFF
	}
	return d.setVCP(vcpBrightness, uint16(level))
}

// Bounds returns the range reported by the brightness VCP; the DDC minimum
// is always zero.
func (d *ddcDevice) Bounds() (min, max uint32) {
	return 0, d.max
}

func (d *ddcDevice) Close() error {
	return d.f.Close()
}

func (d *ddcDevice) Info() DeviceInfo {
	return d.info
}

func (d *ddcDevice) getVCP(vcp byte) (current, max uint16, err error) {
	if err := d.tx([]byte{0x01, vcp}, ddcGetDelay); err != nil {
		return 0, 0, err
	}
	for attempt := 0; attempt < 5; attempt++ {
		buf, err := d.rx()
		if errors.Is(err, ErrDDCNoReply) || (err == nil && len(buf) == 0) {
			d.next = time.Now().Add(ddcGetDelay)
			continue
		}
		if err != nil {
			return 0, 0, err
		}
		return parseVCPReply(buf, vcp)
	}
	return 0, 0, ErrDDCNoReply
}

func (d *ddcDevice) setVCP(vcp byte, val uint16) error {
	return d.tx([]byte{0x03, vcp, byte(val >> 8), byte(val)}, ddcSetDelay)
}

// parseVCPReply validates a Get VCP Feature reply and extracts the current
// and maximum values.
func parseVCPReply(buf []byte, vcp byte) (current, max uint16, err error) {
	if len(buf) != 8 {
		return 0, 0, fmt.Errorf("%w: vcp reply length %d", ErrDDCBadReply, len(buf))
	}
	if buf[0] != 0x02 {
		return 0, 0, fmt.Errorf("%w: reply opcode 0x%02X", ErrDDCBadReply, buf[0])
	}
	if buf[1] != 0x00 {
		return 0, 0, fmt.Errorf("%w: result code %d for vcp 0x%02X", ErrDDCBadReply, buf[1], vcp)
	}
	if buf[2] != vcp {
		return 0, 0, fmt.Errorf("%w: reply for vcp 0x%02X, requested 0x%02X", ErrDDCBadReply, buf[2], vcp)
	}
	max = binary.BigEndian.Uint16(buf[4:6])
	current = binary.BigEndian.Uint16(buf[6:8])
	return current, max, nil
}

// tx sends a DDC/CI command and records the mandated settle delay.
func (d *ddcDevice) tx(cmd []byte, wait time.Duration) error {
	d.settle()

	buf := append([]byte{ddcHostAddr, 0x80 | byte(len(cmd))}, cmd...)
	buf = append(buf, ddcChecksum(ddcAddr<<1, buf))

	if _, err := d.f.Write(buf); err != nil {
		return fmt.Errorf("ddc write failed: %w", err)
	}
	d.next = time.Now().Add(wait)
	return nil
}

// rx reads one DDC/CI reply, validating the source address and checksum.
func (d *ddcDevice) rx() ([]byte, error) {
	d.settle()

	hdr := make([]byte, 2)
	n, err := d.f.Read(hdr)
	if err == nil && n != len(hdr) {
		err = fmt.Errorf("%w: short header read (%d bytes)", ErrDDCBadReply, n)
	}
	if err != nil {
		return nil, err
	}

	srcAddr := hdr[0] >> 1
	pktLen := int(hdr[1] &^ 0x80)
	if srcAddr == 0 {
		return nil, ErrDDCNoReply
	}
	if srcAddr != ddcAddr {
		return nil, fmt.Errorf("%w: source address 0x%02X", ErrDDCBadReply, srcAddr)
	}
	if hdr[1]&0x80 == 0 {
		return nil, fmt.Errorf("%w: length flag not set", ErrDDCBadReply)
	}

	buf := make([]byte, pktLen+1)
	n, err = d.f.Read(buf)
	if err == nil && n != len(buf) {
		err = fmt.Errorf("%w: short payload read (%d of %d bytes)", ErrDDCBadReply, n, len(buf))
	}
	if err != nil {
		return nil, err
	}

	// Replies are checksummed with the 0x50 virtual host address.
	want := ddcChecksum(ddcHostAddr-1, append(hdr, buf[:pktLen]...))
	if buf[pktLen] != want {
		return nil, ErrDDCChecksum
	}
	return buf[:pktLen], nil
}

// ddcChecksum xors the seed address with every byte of the message.
func ddcChecksum(seed byte, buf []byte) byte {
	ck := seed
	for _, b := range buf {
		ck ^= b
	}
	return ck
}

// settle blocks until the bus settle delay from the previous transaction has
// elapsed.
func (d *ddcDevice) settle() {
	for t := time.Now(); t.Before(d.next); t = time.Now() {
		time.Sleep(d.next.Sub(t))
	}
}
