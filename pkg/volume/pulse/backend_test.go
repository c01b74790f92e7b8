package pulse

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/mixlink/pkg/volume"
)

const sinkInputsOutput = `Sink Input #41
	Driver: protocol-native.c
	Owner Module: 9
	Client: 55
	Sink: 0
	Mute: no
	Volume: front-left: 42598 /  65% / -11.23 dB,   front-right: 42598 /  65% / -11.23 dB
	        balance 0.00
	Properties:
		media.name = "Playback"
		application.name = "Firefox"
		application.process.binary = "firefox"

Sink Input #42
	Mute: yes
	Volume: front-left: 65536 / 100% / 0.00 dB,   front-right: 65536 / 100% / 0.00 dB
	Properties:
		application.process.binary = "spotify.bin"

Sink Input #43
	Mute: no
	Volume: front-left: 32768 /  50% / -18.06 dB
	Properties:
		application.name = "Firefox"
		application.process.binary = "firefox"

Sink Input #44
	Mute: no
	Volume: mono: 98304 / 150% / 10.57 dB
	Properties:
		application.name = "Loud"
`

type fakeRunner struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	key := strings.Join(args, " ")
	f.calls = append(f.calls, key)
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	return []byte(f.outputs[key]), nil
}

func newFake() *fakeRunner {
	return &fakeRunner{
		outputs: map[string]string{"list sink-inputs": sinkInputsOutput},
		errs:    map[string]error{},
	}
}

func TestParseSinkInputs(t *testing.T) {
	inputs := parseSinkInputs([]byte(sinkInputsOutput))
	require.Len(t, inputs, 4)

	assert.Equal(t, sinkInput{ID: 41, Name: "Firefox", Binary: "firefox", Volume: 65, HasVolume: true}, inputs[0])
	assert.True(t, inputs[1].Muted)
	assert.Equal(t, 0, inputs[1].Level())
	assert.Equal(t, 100, inputs[3].Volume, "values above 100% clamp")
	assert.Empty(t, inputs[3].Binary)
}

func TestApplications_MergesByBinary(t *testing.T) {
	r := newFake()
	b := New(WithRunner(r))

	apps, err := b.Applications(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 3)

	assert.Equal(t, "firefox", apps[0].Binary())
	assert.Equal(t, "Firefox", apps[0].Name())
	assert.Equal(t, []int{41, 43}, apps[0].(*application).ids)

	assert.Equal(t, "spotify", apps[1].Name(), "name falls back to binary stem")
	assert.Equal(t, volume.TypeApplication, apps[1].Type())

	assert.Equal(t, "", apps[2].Binary())
}

func TestApplication_SetVolumeFansOut(t *testing.T) {
	r := newFake()
	b := New(WithRunner(r))
	apps, err := b.Applications(context.Background())
	require.NoError(t, err)

	r.calls = nil
	require.NoError(t, apps[0].SetVolume(120))
	assert.Equal(t, []string{
		"set-sink-input-mute 41 0",
		"set-sink-input-volume 41 100%",
		"set-sink-input-mute 43 0",
		"set-sink-input-volume 43 100%",
	}, r.calls)
}

func TestApplication_SetVolumeReportsFailure(t *testing.T) {
	r := newFake()
	r.errs["set-sink-input-volume 41 30%"] = errors.New("no such entity")
	b := New(WithRunner(r))
	apps, err := b.Applications(context.Background())
	require.NoError(t, err)

	assert.Error(t, apps[0].SetVolume(30))
}

func TestApplication_VolumeKeepsLastValueOnError(t *testing.T) {
	r := newFake()
	b := New(WithRunner(r))
	apps, err := b.Applications(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 65, apps[0].Volume())

	r.errs["list sink-inputs"] = errors.New("connection refused")
	assert.Equal(t, 65, apps[0].Volume())
}

func TestMaster(t *testing.T) {
	r := newFake()
	r.outputs["get-sink-mute @DEFAULT_SINK@"] = "Mute: no\n"
	r.outputs["get-sink-volume @DEFAULT_SINK@"] = "Volume: front-left: 49152 /  75% / -7.50 dB,   front-right: 49152 /  75% / -7.50 dB\n        balance 0.00\n"
	b := New(WithRunner(r))

	m, err := b.Master(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Main", m.Name())
	assert.Equal(t, "", m.Binary())
	assert.Equal(t, volume.TypeMaster, m.Type())
	assert.Equal(t, 75, m.Volume())

	r.outputs["get-sink-mute @DEFAULT_SINK@"] = "Mute: yes\n"
	assert.Equal(t, 0, m.Volume())

	r.errs["get-sink-mute @DEFAULT_SINK@"] = errors.New("timeout")
	assert.Equal(t, 0, m.Volume(), "stale value on error")

	r.calls = nil
	require.NoError(t, m.SetVolume(-4))
	assert.Equal(t, []string{
		"set-sink-mute @DEFAULT_SINK@ 0",
		"set-sink-volume @DEFAULT_SINK@ 0%",
	}, r.calls)
}

func TestMaster_ServerUnavailable(t *testing.T) {
	r := newFake()
	r.errs["info"] = errors.New("Connection failure: Connection refused")
	b := New(WithRunner(r))

	_, err := b.Master(context.Background())
	assert.Error(t, err)
}
