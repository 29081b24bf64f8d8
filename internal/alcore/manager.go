package alcore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const maxPlaybackDevicesSentinel = 1 << 30 // effectively unbounded

type options struct {
	updateInterval     time.Duration
	deviceScanInterval time.Duration
	eventPumpInterval  time.Duration
	preferredName      string
}

func defaultOptions() options {
	return options{
		updateInterval:     120 * time.Millisecond,
		deviceScanInterval: time.Second,
		eventPumpInterval:  200 * time.Millisecond,
	}
}

// Option configures a Manager at construction time.
type Option func(*options)

func WithUpdateInterval(d time.Duration) Option     { return func(o *options) { o.updateInterval = d } }
func WithDeviceScanInterval(d time.Duration) Option { return func(o *options) { o.deviceScanInterval = d } }
func WithEventPumpInterval(d time.Duration) Option  { return func(o *options) { o.eventPumpInterval = d } }

// WithPreferredDeviceName hints which device name the worker should open
// first (and give device id 0) whenever it (re)builds its device list, by
// name rather than by whatever order the backend happens to enumerate in.
// It is a hint, not a filter: every enumerated device is still opened.
func WithPreferredDeviceName(name string) Option {
	return func(o *options) { o.preferredName = name }
}

// Manager is the device manager: it owns the worker, the caller-visible
// PlaybackDevice objects, the registered listeners, and the process-wide id
// allocators shared across every device it created.
type Manager struct {
	w *worker

	mu        sync.Mutex
	devices   []*PlaybackDevice
	defaultID int32

	listeners []*listenerRegistration

	timestamps seqCounter
	fileIDs    idAllocator
	soundIDs   idAllocator

	finishingDepth int

	closed atomic.Bool

	pumpStop     chan struct{}
	pumpDone     chan struct{}
	pumpInterval time.Duration
}

// New creates a Manager backed by lib, completing the three-phase startup
// handshake (enumerate, open, hand devices to the caller, release the
// worker into its main loop) before returning.
func New(lib NativeLibrary, opts ...Option) (*Manager, error) {
	cfg := defaultOptions()
	for _, o := range opts {
		o(&cfg)
	}

	m := &Manager{defaultID: -1, pumpInterval: cfg.eventPumpInterval}
	w := newWorker(lib, cfg.updateInterval, cfg.deviceScanInterval, cfg.preferredName)
	initial, enumErr := w.start()
	if enumErr != "" {
		close(w.devicesCreated)
		return nil, fmt.Errorf("alcore: device enumeration failed: %s", enumErr)
	}
	m.w = w

	m.devices = make([]*PlaybackDevice, len(initial))
	for _, info := range initial {
		pd := newPlaybackDevice(m, info.ID, info.Name, info.IsDefault)
		m.devices[info.ID] = pd
		if info.IsDefault {
			m.defaultID = info.ID
		}
	}
	close(w.devicesCreated)

	m.pumpStop = make(chan struct{})
	m.pumpDone = make(chan struct{})
	go m.pumpEvents()

	return m, nil
}

func (m *Manager) isClosed() bool { return m.closed.Load() }

func (m *Manager) postCommand(c Command) {
	if m.isClosed() {
		return
	}
	m.w.postCommand(c)
}

func (m *Manager) ensureSlot(id int32) {
	for int32(len(m.devices)) <= id {
		m.devices = append(m.devices, nil)
	}
}

func (m *Manager) deviceAt(id int32) *PlaybackDevice {
	if id < 0 || int(id) >= len(m.devices) {
		return nil
	}
	return m.devices[id]
}

func (m *Manager) deviceAtLocked(id int32) *PlaybackDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deviceAt(id)
}

// Devices returns every currently live device, in device-id order with gaps
// for removed slots omitted.
func (m *Manager) Devices() []*PlaybackDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*PlaybackDevice, 0, len(m.devices))
	for _, pd := range m.devices {
		if pd != nil {
			out = append(out, pd)
		}
	}
	return out
}

// GetMaxPlaybackDevices reports the management capability's device-count
// ceiling; this backend imposes none beyond the host's own limits.
func (m *Manager) GetMaxPlaybackDevices() int32 { return maxPlaybackDevicesSentinel }

// GetDefaultPlayback returns the device currently tracked as the host's
// default, or nil if there isn't one.
func (m *Manager) GetDefaultPlayback() *PlaybackDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deviceAt(m.defaultID)
}

// SupportsSpatialSounds reports whether this manager honors 3D position at
// all (it does, albeit with a simplified attenuation/pan model rather than
// true spatial fidelity).
func (m *Manager) SupportsSpatialSounds() bool { return true }

// GetDeviceManager returns the device manager backing the playback
// management capability. In this implementation the two are the same
// object: there is no separate host-framework-visible wrapper to return.
func (m *Manager) GetDeviceManager() *Manager { return m }

// AddListener registers l to receive finished-sound and device-management
// notifications. finalize controls whether removing l later synthesizes
// LISTENER_REMOVED events for sounds it can still see.
func (m *Manager) AddListener(l Listener, finalize bool) ListenerHandle {
	m.mu.Lock()
	lr := newListenerRegistration(l, m.timestamps.next(), finalize)
	m.listeners = append(m.listeners, lr)
	m.mu.Unlock()
	return ListenerHandle{reg: lr}
}

// RemoveListener unregisters the listener behind h. If it was registered
// with finalize=true, every device is given a chance to synthesize
// LISTENER_REMOVED events to it first.
func (m *Manager) RemoveListener(h ListenerHandle) {
	m.mu.Lock()
	idx := -1
	for i, lr := range m.listeners {
		if lr == h.reg {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return
	}
	m.listeners = append(m.listeners[:idx], m.listeners[idx+1:]...)
	finalize := h.reg.finalize
	devices := append([]*PlaybackDevice(nil), m.devices...)
	m.mu.Unlock()

	if !finalize {
		return
	}
	m.beginFinalization()
	defer m.endFinalization()
	for _, pd := range devices {
		if pd != nil {
			pd.finalizeListener(m, h.reg)
		}
	}
}

func (m *Manager) beginFinalization() {
	m.mu.Lock()
	m.finishingDepth++
	m.mu.Unlock()
}

// endFinalization decrements the nesting depth and, only once it has
// returned to zero, resets every listener's de-dup set. A finalization
// episode can itself trigger another (removing a device's last sound can
// cascade into removing its last listener), so resetting at any depth above
// zero would let a sound be re-finalized to the same listener.
func (m *Manager) endFinalization() {
	m.mu.Lock()
	m.finishingDepth--
	depth := m.finishingDepth
	var regs []*listenerRegistration
	if depth == 0 {
		regs = append(regs, m.listeners...)
	}
	m.mu.Unlock()
	for _, lr := range regs {
		lr.resetExtraData()
	}
}

func (m *Manager) broadcastDeviceMgmt(kind DeviceMgmtKind, deviceID int32, name string) {
	m.mu.Lock()
	listeners := append([]*listenerRegistration(nil), m.listeners...)
	m.mu.Unlock()
	for _, lr := range listeners {
		lr.listener.OnDeviceManagement(kind, deviceID, name)
	}
}

func (m *Manager) pumpEvents() {
	defer close(m.pumpDone)
	ticker := time.NewTicker(m.pumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.pumpStop:
			m.handleEvents(m.w.drainEvents())
			return
		case <-ticker.C:
			m.handleEvents(m.w.drainEvents())
		}
	}
}

func (m *Manager) handleEvents(evts []Event) {
	for _, e := range evts {
		m.handleEvent(e)
	}
}

func (m *Manager) handleEvent(e Event) {
	switch e.Kind {
	case EvtDeviceAdded:
		pd := newPlaybackDevice(m, e.DeviceID, e.DeviceName, e.IsDefault)
		m.mu.Lock()
		m.ensureSlot(e.DeviceID)
		m.devices[e.DeviceID] = pd
		if e.IsDefault {
			m.defaultID = e.DeviceID
		}
		m.mu.Unlock()
		m.broadcastDeviceMgmt(DeviceMgmtAdded, e.DeviceID, e.DeviceName)

	case EvtDeviceRemoved:
		if pd := m.deviceAtLocked(e.DeviceID); pd != nil {
			pd.finishDeviceSounds(m)
		}
		m.mu.Lock()
		if int(e.DeviceID) < len(m.devices) {
			m.devices[e.DeviceID] = nil
		}
		if m.defaultID == e.DeviceID {
			m.defaultID = -1
		}
		m.mu.Unlock()
		m.broadcastDeviceMgmt(DeviceMgmtRemoved, e.DeviceID, "")

	case EvtDeviceChanged:
		if pd := m.deviceAtLocked(e.DeviceID); pd != nil {
			pd.setIsDefault(e.IsDefault)
		}
		m.mu.Lock()
		if e.IsDefault {
			m.defaultID = e.DeviceID
		} else if m.defaultID == e.DeviceID {
			m.defaultID = -1
		}
		m.mu.Unlock()
		m.broadcastDeviceMgmt(DeviceMgmtChanged, e.DeviceID, "")

	case EvtSoundFinished:
		if pd := m.deviceAtLocked(e.DeviceID); pd != nil {
			pd.dispatchFinished(m, e.SoundID, FinishedCompleted)
		}

	case EvtPlayError:
		if pd := m.deviceAtLocked(e.DeviceID); pd != nil {
			pd.dispatchFinished(m, e.SoundID, FinishedFileNotFound)
		}
	}
}

// Shutdown stops the event pump and the worker, waiting for both to finish
// or for ctx to be done first. It is idempotent.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(m.pumpStop)
	m.w.requestShutdown()

	done := make(chan struct{})
	go func() {
		<-m.pumpDone
		m.w.wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
