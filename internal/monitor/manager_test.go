package monitor_test

import (
	"errors"
	"testing"

	"github.com/JRF63/monitor-brightness-controller/internal/monitor"
	"github.com/JRF63/monitor-brightness-controller/internal/monitor/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newEnumeratedDevice(ctrl *gomock.Controller, id string) *mocks.MockDevice {
	device := mocks.NewMockDevice(ctrl)
	device.EXPECT().Bounds().Return(uint32(0), uint32(100)).AnyTimes()
	device.EXPECT().Info().Return(monitor.DeviceInfo{ID: id, Name: id, Backend: "ddc"}).AnyTimes()
	return device
}

func TestManager_Enumerate(t *testing.T) {
	ctrl := gomock.NewController(t)
	d1 := newEnumeratedDevice(ctrl, "/dev/i2c-4")
	d2 := newEnumeratedDevice(ctrl, "/dev/i2c-5")

	m := monitor.NewManager(monitor.WithEnumerator(func() ([]monitor.Device, error) {
		return []monitor.Device{d1, d2}, nil
	}))

	require.NoError(t, m.Enumerate())
	assert.Equal(t, 2, m.Count())

	// Order follows enumeration order; indexes are the target identity.
	monitors := m.Monitors()
	require.Len(t, monitors, 2)
	assert.Equal(t, "/dev/i2c-4", monitors[0].Info().ID)
	assert.Equal(t, "/dev/i2c-5", monitors[1].Info().ID)
}

func TestManager_EnumerateMergesBackends(t *testing.T) {
	ctrl := gomock.NewController(t)
	d1 := newEnumeratedDevice(ctrl, "first")
	d2 := newEnumeratedDevice(ctrl, "second")

	m := monitor.NewManager(
		monitor.WithEnumerator(func() ([]monitor.Device, error) {
			return []monitor.Device{d1}, nil
		}),
		monitor.WithEnumerator(func() ([]monitor.Device, error) {
			return []monitor.Device{d2}, nil
		}),
	)

	require.NoError(t, m.Enumerate())
	assert.Equal(t, 2, m.Count())
}

func TestManager_EnumerateNoDisplays(t *testing.T) {
	m := monitor.NewManager(monitor.WithEnumerator(func() ([]monitor.Device, error) {
		return nil, nil
	}))

	err := m.Enumerate()
	assert.ErrorIs(t, err, monitor.ErrNoDisplays)
}

func TestManager_EnumerateOneBackendFailing(t *testing.T) {
	ctrl := gomock.NewController(t)
	d1 := newEnumeratedDevice(ctrl, "survivor")

	m := monitor.NewManager(
		monitor.WithEnumerator(func() ([]monitor.Device, error) {
			return nil, errors.New("hid enumeration failed")
		}),
		monitor.WithEnumerator(func() ([]monitor.Device, error) {
			return []monitor.Device{d1}, nil
		}),
	)

	// One backend failing is not fatal while another finds displays.
	require.NoError(t, m.Enumerate())
	assert.Equal(t, 1, m.Count())
}

func TestManager_EnumerateAllBackendsFailing(t *testing.T) {
	enumErr := errors.New("enumeration failed")
	m := monitor.NewManager(monitor.WithEnumerator(func() ([]monitor.Device, error) {
		return nil, enumErr
	}))

	err := m.Enumerate()
	assert.ErrorIs(t, err, monitor.ErrNoDisplays)
	assert.ErrorIs(t, err, enumErr)
}

func TestManager_Close(t *testing.T) {
	ctrl := gomock.NewController(t)
	device := newEnumeratedDevice(ctrl, "one")
	device.EXPECT().Close().Return(nil).Times(1)

	m := monitor.NewManager(monitor.WithEnumerator(func() ([]monitor.Device, error) {
		return []monitor.Device{device}, nil
	}))
	require.NoError(t, m.Enumerate())

	require.NoError(t, m.Close())
	assert.Equal(t, 0, m.Count())
}
