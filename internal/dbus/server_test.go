package dbus

import (
	"testing"

	"golang.org/x/time/rate"

	"github.com/JRF63/monitor-brightness-controller/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender records forwarded intents.
type fakeSender struct {
	intents []event.Intent
	reject  bool
}

func (f *fakeSender) Send(in event.Intent) bool {
	if f.reject {
		return false
	}
	f.intents = append(f.intents, in)
	return true
}

func twoDisplays() []DisplayState {
	return []DisplayState{
		{Name: "DELL U2720Q", Level: 50, Min: 0, Max: 100},
		{Name: "Apple Studio Display", Level: 60, Min: 0, Max: 100},
	}
}

func newTestServer(sender Sender, displays []DisplayState) *Server {
	return NewServer(sender, displays, rate.Inf, 1)
}

func TestServer_ListDisplays(t *testing.T) {
	s := newTestServer(&fakeSender{}, twoDisplays())

	result, derr := s.ListDisplays()
	require.Nil(t, derr)
	require.Len(t, result, 2)
	assert.Equal(t, uint32(0), result[0].Index)
	assert.Equal(t, "DELL U2720Q", result[0].Name)
	assert.Equal(t, uint32(50), result[0].Level)
	assert.Equal(t, uint32(1), result[1].Index)
	assert.Equal(t, "Apple Studio Display", result[1].Name)
}

func TestServer_ListDisplays_Empty(t *testing.T) {
	s := newTestServer(&fakeSender{}, nil)

	result, derr := s.ListDisplays()
	require.Nil(t, derr)
	assert.Empty(t, result)
}

func TestServer_GetBrightness(t *testing.T) {
	s := newTestServer(&fakeSender{}, twoDisplays())

	level, derr := s.GetBrightness(1)
	require.Nil(t, derr)
	assert.Equal(t, uint32(60), level)
}

func TestServer_GetBrightness_UnknownIndex(t *testing.T) {
	s := newTestServer(&fakeSender{}, twoDisplays())

	_, derr := s.GetBrightness(7)
	require.NotNil(t, derr)
	assert.Contains(t, derr.Error(), "unknown display index")
}

func TestServer_SetBrightness_ForwardsIntent(t *testing.T) {
	sender := &fakeSender{}
	s := newTestServer(sender, twoDisplays())

	require.Nil(t, s.SetBrightness(0, 75))

	require.Len(t, sender.intents, 1)
	assert.Equal(t, event.Change(0, 75), sender.intents[0])

	// The cached view follows the request.
	level, derr := s.GetBrightness(0)
	require.Nil(t, derr)
	assert.Equal(t, uint32(75), level)
}

func TestServer_SetBrightness_ClampsToDisplayBounds(t *testing.T) {
	sender := &fakeSender{}
	s := newTestServer(sender, []DisplayState{{Name: "d", Level: 50, Min: 10, Max: 90}})

	require.Nil(t, s.SetBrightness(0, 200))

	require.Len(t, sender.intents, 1)
	assert.Equal(t, uint32(90), sender.intents[0].Level)
}

func TestServer_SetBrightness_UnknownIndex(t *testing.T) {
	sender := &fakeSender{}
	s := newTestServer(sender, twoDisplays())

	derr := s.SetBrightness(9, 50)
	require.NotNil(t, derr)
	assert.Empty(t, sender.intents)
}

func TestServer_SetBrightness_DroppedIntentIsNotAnError(t *testing.T) {
	sender := &fakeSender{reject: true}
	s := newTestServer(sender, twoDisplays())

	// A full mailbox must never surface as a caller-visible failure.
	assert.Nil(t, s.SetBrightness(0, 75))
}

func TestServer_SetBrightness_RateLimited(t *testing.T) {
	sender := &fakeSender{}
	s := NewServer(sender, twoDisplays(), 1, 1)

	require.Nil(t, s.SetBrightness(0, 75))

	derr := s.SetBrightness(0, 80)
	require.NotNil(t, derr)
	assert.Contains(t, derr.Error(), "rate limit exceeded")
	assert.Len(t, sender.intents, 1)
}

func TestServer_IncreaseBrightness(t *testing.T) {
	sender := &fakeSender{}
	s := newTestServer(sender, twoDisplays())

	require.Nil(t, s.IncreaseBrightness(0, 30))
	require.Len(t, sender.intents, 1)
	assert.Equal(t, event.Change(0, 80), sender.intents[0])

	// Saturates at the maximum.
	require.Nil(t, s.IncreaseBrightness(0, 50))
	require.Len(t, sender.intents, 2)
	assert.Equal(t, uint32(100), sender.intents[1].Level)
}

func TestServer_IncreaseBrightness_ZeroStep(t *testing.T) {
	s := newTestServer(&fakeSender{}, twoDisplays())

	derr := s.IncreaseBrightness(0, 0)
	require.NotNil(t, derr)
	assert.Contains(t, derr.Error(), "step must be at least 1")
}

func TestServer_DecreaseBrightness(t *testing.T) {
	sender := &fakeSender{}
	s := newTestServer(sender, twoDisplays())

	require.Nil(t, s.DecreaseBrightness(0, 20))
	require.Len(t, sender.intents, 1)
	assert.Equal(t, event.Change(0, 30), sender.intents[0])

	// Saturates at the minimum.
	require.Nil(t, s.DecreaseBrightness(0, 200))
	require.Len(t, sender.intents, 2)
	assert.Equal(t, uint32(0), sender.intents[1].Level)
}

func TestServer_SetAllBrightness(t *testing.T) {
	sender := &fakeSender{}
	s := newTestServer(sender, []DisplayState{
		{Name: "a", Level: 50, Min: 0, Max: 100},
		{Name: "b", Level: 60, Min: 20, Max: 80},
	})

	require.Nil(t, s.SetAllBrightness(90))

	require.Len(t, sender.intents, 2)
	assert.Equal(t, event.Change(0, 90), sender.intents[0])
	// Clamped to the second display's own range.
	assert.Equal(t, event.Change(1, 80), sender.intents[1])
}

func TestServer_StopWithoutStart(t *testing.T) {
	s := newTestServer(&fakeSender{}, nil)
	assert.NoError(t, s.Stop())
}
