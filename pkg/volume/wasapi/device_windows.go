//go:build windows

package wasapi

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"github.com/moutend/go-wca/pkg/wca"
	"golang.org/x/sys/windows"
)

// comThread runs every COM call on one locked OS thread, the apartment the
// interfaces were created in.
type comThread struct {
	calls chan func()
}

func startCOM() (*comThread, error) {
	t := &comThread{calls: make(chan func())}
	ready := make(chan error, 1)
	go t.loop(ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return t, nil
}

func (t *comThread) loop(ready chan<- error) {
	runtime.LockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		// S_FALSE: the thread was already initialized.
		const sFalse = 1
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) || oleErr.Code() != sFalse {
			ready <- fmt.Errorf("initialize COM: %w", err)
			return
		}
	}
	ready <- nil

	for f := range t.calls {
		f()
	}
}

func (t *comThread) do(f func() error) error {
	errc := make(chan error, 1)
	t.calls <- func() { errc <- f() }
	return <-errc
}

// device is the default render endpoint reached through the session manager.
type device struct {
	com *comThread

	mu   sync.Mutex
	live []*sessionControl
}

// NewDevice initializes COM on a dedicated thread.
func NewDevice() (Device, error) {
	com, err := startCOM()
	if err != nil {
		return nil, err
	}
	return &device{com: com}, nil
}

func defaultEndpoint() (*wca.IMMDevice, error) {
	var de *wca.IMMDeviceEnumerator
	if err := wca.CoCreateInstance(wca.CLSID_MMDeviceEnumerator, 0, wca.CLSCTX_ALL, wca.IID_IMMDeviceEnumerator, &de); err != nil {
		return nil, fmt.Errorf("create device enumerator: %w", err)
	}
	defer de.Release()

	var mmd *wca.IMMDevice
	if err := de.GetDefaultAudioEndpoint(wca.ERender, wca.EConsole, &mmd); err != nil {
		return nil, fmt.Errorf("get default render endpoint: %w", err)
	}
	return mmd, nil
}

func (d *device) Endpoint(ctx context.Context) (Control, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ctl *endpointControl
	err := d.com.do(func() error {
		mmd, err := defaultEndpoint()
		if err != nil {
			return err
		}
		defer mmd.Release()

		var aev *wca.IAudioEndpointVolume
		if err := mmd.Activate(wca.IID_IAudioEndpointVolume, wca.CLSCTX_ALL, nil, &aev); err != nil {
			return fmt.Errorf("activate endpoint volume: %w", err)
		}
		ctl = &endpointControl{com: d.com, aev: aev}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ctl, nil
}

// Sessions enumerates process sessions. Controls handed out by the previous
// successful call are released.
func (d *device) Sessions(ctx context.Context) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		sessions []Session
		controls []*sessionControl
	)
	err := d.com.do(func() error {
		mmd, err := defaultEndpoint()
		if err != nil {
			return err
		}
		defer mmd.Release()

		var mgr *wca.IAudioSessionManager2
		if err := mmd.Activate(wca.IID_IAudioSessionManager2, wca.CLSCTX_ALL, nil, &mgr); err != nil {
			return fmt.Errorf("activate session manager: %w", err)
		}
		defer mgr.Release()

		var se *wca.IAudioSessionEnumerator
		if err := mgr.GetSessionEnumerator(&se); err != nil {
			return fmt.Errorf("get session enumerator: %w", err)
		}
		defer se.Release()

		var count int
		if err := se.GetCount(&count); err != nil {
			return fmt.Errorf("count sessions: %w", err)
		}
		for i := 0; i < count; i++ {
			var asc *wca.IAudioSessionControl
			if err := se.GetSession(i, &asc); err != nil {
				continue
			}
			s, ctl, ok := d.session(asc)
			asc.Release()
			if ok {
				sessions = append(sessions, s)
				controls = append(controls, ctl)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	stale := d.live
	d.live = controls
	d.mu.Unlock()
	if len(stale) > 0 {
		_ = d.com.do(func() error {
			for _, c := range stale {
				c.sav.Release()
			}
			return nil
		})
	}
	return sessions, nil
}

// session resolves one session. Sessions without an owning process, such as
// system sounds, are skipped.
func (d *device) session(asc *wca.IAudioSessionControl) (Session, *sessionControl, bool) {
	dispatch, err := asc.QueryInterface(wca.IID_IAudioSessionControl2)
	if err != nil {
		return Session{}, nil, false
	}
	asc2 := (*wca.IAudioSessionControl2)(unsafe.Pointer(dispatch))
	defer asc2.Release()

	var pid uint32
	if err := asc2.GetProcessId(&pid); err != nil || pid == 0 {
		return Session{}, nil, false
	}
	binary, err := processName(pid)
	if err != nil {
		return Session{}, nil, false
	}

	var displayName string
	_ = asc.GetDisplayName(&displayName)

	dispatch, err = asc2.QueryInterface(wca.IID_ISimpleAudioVolume)
	if err != nil {
		return Session{}, nil, false
	}
	ctl := &sessionControl{com: d.com, sav: (*wca.ISimpleAudioVolume)(unsafe.Pointer(dispatch))}
	return Session{Binary: binary, DisplayName: displayName, Control: ctl}, ctl, true
}

func processName(pid uint32) (string, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", err
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return "", err
	}
	return filepath.Base(windows.UTF16ToString(buf[:size])), nil
}

type sessionControl struct {
	com *comThread
	sav *wca.ISimpleAudioVolume
}

func (c *sessionControl) Level() (float32, error) {
	var level float32
	err := c.com.do(func() error { return c.sav.GetMasterVolume(&level) })
	return level, err
}

func (c *sessionControl) SetLevel(v float32) error {
	return c.com.do(func() error { return c.sav.SetMasterVolume(v, nil) })
}

func (c *sessionControl) Muted() (bool, error) {
	var muted bool
	err := c.com.do(func() error { return c.sav.GetMute(&muted) })
	return muted, err
}

func (c *sessionControl) SetMute(m bool) error {
	return c.com.do(func() error { return c.sav.SetMute(m, nil) })
}

type endpointControl struct {
	com *comThread
	aev *wca.IAudioEndpointVolume
}

func (c *endpointControl) Level() (float32, error) {
	var level float32
	err := c.com.do(func() error { return c.aev.GetMasterVolumeLevelScalar(&level) })
	return level, err
}

func (c *endpointControl) SetLevel(v float32) error {
	return c.com.do(func() error { return c.aev.SetMasterVolumeLevelScalar(v, nil) })
}

func (c *endpointControl) Muted() (bool, error) {
	var muted bool
	err := c.com.do(func() error { return c.aev.GetMute(&muted) })
	return muted, err
}

func (c *endpointControl) SetMute(m bool) error {
	return c.com.do(func() error { return c.aev.SetMute(m, nil) })
}
