package wasapi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/mixlink/pkg/volume"
)

type fakeControl struct {
	level    float32
	muted    bool
	readErr  error
	writeErr error
}

func (c *fakeControl) Level() (float32, error) { return c.level, c.readErr }
func (c *fakeControl) Muted() (bool, error)    { return c.muted, c.readErr }

func (c *fakeControl) SetLevel(v float32) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	c.level = v
	return nil
}

func (c *fakeControl) SetMute(m bool) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	c.muted = m
	return nil
}

type fakeDevice struct {
	sessions    []Session
	sessionsErr error
	endpoint    Control
	endpointErr error
}

func (d *fakeDevice) Sessions(context.Context) ([]Session, error) {
	return d.sessions, d.sessionsErr
}

func (d *fakeDevice) Endpoint(context.Context) (Control, error) {
	return d.endpoint, d.endpointErr
}

func TestApplications_MergesByBinary(t *testing.T) {
	chrome1 := &fakeControl{level: 0.654}
	chrome2 := &fakeControl{level: 0.2}
	dev := &fakeDevice{sessions: []Session{
		{Binary: "chrome.exe", Control: chrome1},
		{Binary: "Spotify.exe", DisplayName: "Spotify Premium", Control: &fakeControl{level: 1, muted: true}},
		{Binary: "Chrome.exe", Control: chrome2},
		{Binary: "svchost.exe", DisplayName: "@%SystemRoot%\\System32\\AudioSrv.Dll,-202", Control: &fakeControl{}},
	}}

	apps, err := New(dev).Applications(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 3)

	assert.Equal(t, "chrome", apps[0].Name())
	assert.Equal(t, "chrome.exe", apps[0].Binary())
	assert.Equal(t, volume.TypeApplication, apps[0].Type())
	assert.Equal(t, 65, apps[0].Volume())

	assert.Equal(t, "Spotify Premium", apps[1].Name())
	assert.Equal(t, 0, apps[1].Volume(), "muted session reads as 0")

	assert.Equal(t, "svchost", apps[2].Name())
}

func TestApplication_SetVolumeFansOut(t *testing.T) {
	a := &fakeControl{level: 0.1, muted: true}
	b := &fakeControl{level: 0.9}
	dev := &fakeDevice{sessions: []Session{
		{Binary: "game.exe", Control: a},
		{Binary: "game.exe", Control: b},
	}}

	apps, err := New(dev).Applications(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 1)

	require.NoError(t, apps[0].SetVolume(140))
	assert.InDelta(t, 1.0, a.level, 1e-6)
	assert.InDelta(t, 1.0, b.level, 1e-6)
	assert.False(t, a.muted)
	assert.Equal(t, 100, apps[0].Volume())
}

func TestApplication_VolumeKeepsLastValueOnError(t *testing.T) {
	c := &fakeControl{level: 0.4}
	dev := &fakeDevice{sessions: []Session{{Binary: "vlc.exe", Control: c}}}

	apps, err := New(dev).Applications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, apps[0].Volume())

	c.readErr = errors.New("AUDCLNT_E_DEVICE_INVALIDATED")
	assert.Equal(t, 40, apps[0].Volume())

	c.writeErr = errors.New("AUDCLNT_E_DEVICE_INVALIDATED")
	assert.Error(t, apps[0].SetVolume(10))
	assert.Equal(t, 40, apps[0].Volume())
}

func TestMaster(t *testing.T) {
	ep := &fakeControl{level: 0.305, muted: true}
	m, err := New(&fakeDevice{endpoint: ep}).Master(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Main", m.Name())
	assert.Equal(t, "", m.Binary())
	assert.Equal(t, volume.TypeMaster, m.Type())
	assert.Equal(t, 0, m.Volume())

	require.NoError(t, m.SetVolume(-5))
	assert.False(t, ep.muted)
	assert.Equal(t, 0, m.Volume())

	require.NoError(t, m.SetVolume(55))
	assert.Equal(t, 55, m.Volume())
}

func TestMaster_EndpointUnavailable(t *testing.T) {
	_, err := New(&fakeDevice{endpointErr: errors.New("no render endpoint")}).Master(context.Background())
	assert.ErrorContains(t, err, "no render endpoint")
}

func TestApplications_DeviceError(t *testing.T) {
	_, err := New(&fakeDevice{sessionsErr: errors.New("CoCreateInstance failed")}).Applications(context.Background())
	assert.Error(t, err)
}
