package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/mixlink/pkg/log"
	"github.com/bft-labs/mixlink/pkg/transport"
	"github.com/bft-labs/mixlink/pkg/volume"
)

type entity struct {
	name, binary string
	typ          volume.Type
	vol          int
	sets         []int
}

func (e *entity) Name() string      { return e.name }
func (e *entity) Binary() string    { return e.binary }
func (e *entity) Type() volume.Type { return e.typ }
func (e *entity) Volume() int       { return e.vol }
func (e *entity) SetVolume(v int) error {
	e.sets = append(e.sets, v)
	e.vol = volume.Clamp(v)
	return nil
}

type backend struct {
	master    volume.Entity
	masterErr error
	apps      []volume.Entity
}

func (b *backend) Applications(context.Context) ([]volume.Entity, error) {
	return append([]volume.Entity(nil), b.apps...), nil
}

func (b *backend) Master(context.Context) (volume.Entity, error) {
	return b.master, b.masterErr
}

// scriptConn replays reads and records writes. After the script runs out it
// calls onDone and reports a timeout.
type scriptConn struct {
	reads  []string
	errAt  error
	writes []string
	closed bool
	onDone func()
}

func (c *scriptConn) ReadLine() (string, error) {
	if len(c.reads) == 0 {
		if c.errAt != nil {
			return "", c.errAt
		}
		if c.onDone != nil {
			c.onDone()
		}
		return "", nil
	}
	line := c.reads[0]
	c.reads = c.reads[1:]
	return line, nil
}

func (c *scriptConn) WriteLine(line string) error {
	c.writes = append(c.writes, line)
	return nil
}

func (c *scriptConn) Close() error {
	c.closed = true
	return nil
}

type opener struct {
	fails int
	conns []*scriptConn
	opens int
}

func (o *opener) Open(ctx context.Context) (transport.Conn, error) {
	o.opens++
	if o.fails > 0 {
		o.fails--
		return nil, errors.New("no such device")
	}
	c := o.conns[0]
	o.conns = o.conns[1:]
	return c, nil
}

func (o *opener) Describe() string { return "fake" }

type recordingSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
	return ctx.Err()
}

type transitions struct {
	mu     sync.Mutex
	states []State
}

func (t *transitions) OnStateChange(_, current State, _ string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states = append(t.states, current)
}

func newDirectory(b volume.Backend, max int) *volume.Directory {
	s := volume.DefaultSettings()
	s.MaxDisplay = max
	return volume.NewDirectory(b, s, nil)
}

func TestRun_ReconnectsAfterOpenFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := &backend{master: &entity{name: "Master", typ: volume.TypeMaster, vol: 30}}
	conn := &scriptConn{onDone: cancel}
	op := &opener{fails: 3, conns: []*scriptConn{conn}}
	sleeper := &recordingSleeper{}
	obs := &transitions{}

	e := New(DefaultConfig(), newDirectory(b, 5), op, WithSleeper(sleeper), WithObserver(obs))
	require.NoError(t, e.Run(ctx))

	assert.Equal(t, 4, op.opens)
	assert.Equal(t, []time.Duration{DefaultReconnectInterval, DefaultReconnectInterval, DefaultReconnectInterval}, sleeper.slept)
	assert.Equal(t, []State{
		StateConnecting, StateDisconnected,
		StateConnecting, StateDisconnected,
		StateConnecting, StateDisconnected,
		StateConnecting, StateConnected,
		StateStopped,
	}, obs.states)
	assert.Equal(t, StateStopped, e.State())
	assert.True(t, conn.closed)
	assert.Equal(t, []string{"Mast,30\n"}, conn.writes)
}

func TestRun_LogsConsecutiveFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var buf bytes.Buffer
	logger := log.NewZerologAdapterWithLogger(zerolog.New(&buf))

	b := &backend{master: &entity{name: "Master", typ: volume.TypeMaster, vol: 30}}
	op := &opener{fails: 2, conns: []*scriptConn{{onDone: cancel}}}

	e := New(DefaultConfig(), newDirectory(b, 5), op, WithSleeper(&recordingSleeper{}), WithLogger(logger))
	require.NoError(t, e.Run(ctx))

	out := buf.String()
	assert.Contains(t, out, `"attempt":1`)
	assert.Contains(t, out, `"attempt":2`)
	assert.NotContains(t, out, `"attempt":3`)
	assert.Equal(t, 0, e.backoff.attempts)
}

func TestRun_AppliesUpdateAndResends(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	master := &entity{name: "Master", typ: volume.TypeMaster, vol: 30}
	fox := &entity{name: "Firefox", binary: "firefox", typ: volume.TypeApplication, vol: 50}
	b := &backend{master: master, apps: []volume.Entity{fox}}

	conn := &scriptConn{reads: []string{"1,80", "", "bogus", "9,10", "0,150"}, onDone: cancel}
	e := New(DefaultConfig(), newDirectory(b, 5), &opener{conns: []*scriptConn{conn}})
	require.NoError(t, e.Run(ctx))

	assert.Equal(t, []int{80}, fox.sets)
	assert.Empty(t, master.sets)
	require.Len(t, conn.writes, 6)
	assert.Equal(t, "Mast,30,Fire,50\n", conn.writes[0])
	assert.Equal(t, "Mast,30,Fire,80\n", conn.writes[1])

	st := e.Stats()
	assert.EqualValues(t, 6, st.FramesSent)
	assert.EqualValues(t, 1, st.UpdatesApplied)
	assert.EqualValues(t, 3, st.UpdatesDropped)
	assert.EqualValues(t, 1, st.Timeouts)
}

func TestRun_TransportFaultReconnects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := &backend{master: &entity{name: "Master", typ: volume.TypeMaster, vol: 10}}
	first := &scriptConn{errAt: errors.New("device unplugged")}
	second := &scriptConn{onDone: cancel}
	sleeper := &recordingSleeper{}
	obs := &transitions{}

	e := New(DefaultConfig(), newDirectory(b, 5), &opener{conns: []*scriptConn{first, second}},
		WithSleeper(sleeper), WithObserver(obs))
	require.NoError(t, e.Run(ctx))

	assert.True(t, first.closed)
	assert.True(t, second.closed)
	assert.Empty(t, sleeper.slept)
	assert.EqualValues(t, 1, e.Stats().Reconnects)
	assert.Equal(t, []State{
		StateConnecting, StateConnected,
		StateDisconnected, StateConnecting, StateConnected,
		StateStopped,
	}, obs.states)
}

func TestRun_WithoutReconnectEndsOnEOF(t *testing.T) {
	b := &backend{master: &entity{name: "Master", typ: volume.TypeMaster, vol: 10}}
	conn := &scriptConn{reads: []string{"0,20"}, errAt: io.EOF}

	cfg := DefaultConfig()
	cfg.Reconnect = false
	e := New(cfg, newDirectory(b, 5), &opener{conns: []*scriptConn{conn}})

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, StateStopped, e.State())
	assert.Len(t, conn.writes, 2)
}

func TestRun_WithoutReconnectReturnsFault(t *testing.T) {
	b := &backend{master: &entity{name: "Master", typ: volume.TypeMaster}}
	conn := &scriptConn{errAt: errors.New("broken pipe")}

	cfg := DefaultConfig()
	cfg.Reconnect = false
	e := New(cfg, newDirectory(b, 5), &opener{conns: []*scriptConn{conn}})

	err := e.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
}

func TestRun_MasterFailureIsInitError(t *testing.T) {
	b := &backend{masterErr: errors.New("no default sink")}
	op := &opener{}

	e := New(DefaultConfig(), newDirectory(b, 5), op)
	err := e.Run(context.Background())

	assert.ErrorIs(t, err, ErrInit)
	assert.Equal(t, 0, op.opens)
	assert.Equal(t, StateStopped, e.State())
}

func TestRun_CanceledBeforeConnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := &backend{master: &entity{name: "Master", typ: volume.TypeMaster}}
	op := &opener{fails: 1}

	e := New(DefaultConfig(), newDirectory(b, 5), op, WithSleeper(&recordingSleeper{}))
	require.NoError(t, e.Run(ctx))
	assert.Equal(t, 0, op.opens)
	assert.Equal(t, StateStopped, e.State())
}

func TestUpdateSettings_AppliedAtCycleStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	master := &entity{name: "Master", typ: volume.TypeMaster, vol: 30}
	fox := &entity{name: "Firefox", binary: "firefox", typ: volume.TypeApplication, vol: 50}
	b := &backend{master: master, apps: []volume.Entity{fox}}

	conn := &scriptConn{onDone: cancel}
	e := New(DefaultConfig(), newDirectory(b, 5), &opener{conns: []*scriptConn{conn}})

	s := volume.DefaultSettings()
	s.Master = false
	s.Names = volume.NameOptions{Overrides: map[string]string{"firefox": "Web"}}
	e.UpdateSettings(s)

	require.NoError(t, e.Run(ctx))
	require.NotEmpty(t, conn.writes)
	assert.Equal(t, "Web ,50\n", conn.writes[0])
}

func TestStateMachine_RejectsInvalidTransition(t *testing.T) {
	m := newStateMachine(nil, nil)
	err := m.transitionTo(StateConnected, "skip connecting")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateDisconnected, m.State())
}
