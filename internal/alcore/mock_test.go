package alcore

import (
	"errors"
	"sync"
	"time"
)

// mockBuffer records what a buffer was created from, just enough to let a
// test correlate a bound source back to the file path or bytes that drive
// it.
type mockBuffer struct {
	path string
	data []byte
}

type mockSource struct {
	bound      uint64
	playing    bool
	onFinished func()
	finished   bool
}

// mockDevice is a deterministic stand-in for a NativeDevice: it never
// touches real audio hardware, but preserves the contract PlaybackDevice and
// worker rely on (buffer/source allocation, play-with-callback, Update
// polling for finished sources).
type mockDevice struct {
	mu  sync.Mutex
	id  string

	buffers map[uint64]mockBuffer
	nextBuf uint64
	sources map[uint64]*mockSource
	nextSrc uint64

	failPaths        map[string]bool
	autoFinishByPath map[string]time.Duration

	nCreateFile int
	nCreateMem  int
	nUpdate     int

	listenerGain float32
	listenerPos  [3]float32
	lastErr      string
	closed       bool
}

func newMockDevice(id string) *mockDevice {
	return &mockDevice{
		id:               id,
		buffers:          make(map[uint64]mockBuffer),
		sources:          make(map[uint64]*mockSource),
		failPaths:        make(map[string]bool),
		autoFinishByPath: make(map[string]time.Duration),
		listenerGain:     1,
	}
}

func (d *mockDevice) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

func (d *mockDevice) CreateBufferFromFile(path string) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nCreateFile++
	if d.failPaths[path] {
		d.lastErr = "nativeal: could not open " + path
		return 0, errors.New(d.lastErr)
	}
	d.nextBuf++
	id := d.nextBuf
	d.buffers[id] = mockBuffer{path: path}
	return id, nil
}

func (d *mockDevice) CreateBufferFromMemory(data []byte) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nCreateMem++
	d.nextBuf++
	id := d.nextBuf
	d.buffers[id] = mockBuffer{data: data}
	return id, nil
}

func (d *mockDevice) DeleteBuffer(buf uint64) {
	d.mu.Lock()
	delete(d.buffers, buf)
	d.mu.Unlock()
}

func (d *mockDevice) AllocateSource() (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextSrc++
	id := d.nextSrc
	d.sources[id] = &mockSource{}
	return id, nil
}

func (d *mockDevice) DeleteSource(src uint64) {
	d.mu.Lock()
	delete(d.sources, src)
	d.mu.Unlock()
}

func (d *mockDevice) SetSourceGain(src uint64, gain float32)       {}
func (d *mockDevice) SetSourceLoop(src uint64, loop bool)          {}
func (d *mockDevice) SetSourceRelative(src uint64, relative bool)  {}
func (d *mockDevice) SetSourcePosition(src uint64, x, y, z float32) {}

func (d *mockDevice) BindSourceBuffer(src uint64, buf uint64) {
	d.mu.Lock()
	if s := d.sources[src]; s != nil {
		s.bound = buf
	}
	d.mu.Unlock()
}

// Play marks src playing and, if the bound buffer's path was configured via
// setAutoFinish, schedules it to report finished after that delay the next
// time Update runs.
func (d *mockDevice) Play(src uint64, onFinished func()) error {
	d.mu.Lock()
	s := d.sources[src]
	if s == nil {
		d.mu.Unlock()
		return errors.New("mockal: play on unknown source")
	}
	s.playing = true
	s.finished = false
	s.onFinished = onFinished
	buf := d.buffers[s.bound]
	delay, ok := d.autoFinishByPath[buf.path]
	d.mu.Unlock()
	if ok && delay > 0 {
		go func() {
			time.Sleep(delay)
			d.mu.Lock()
			if s.playing {
				s.finished = true
			}
			d.mu.Unlock()
		}()
	}
	return nil
}

func (d *mockDevice) Pause(src uint64) {
	d.mu.Lock()
	if s := d.sources[src]; s != nil {
		s.playing = false
	}
	d.mu.Unlock()
}

func (d *mockDevice) Resume(src uint64) {
	d.mu.Lock()
	if s := d.sources[src]; s != nil {
		s.playing = true
	}
	d.mu.Unlock()
}

func (d *mockDevice) Stop(src uint64) {
	d.mu.Lock()
	if s := d.sources[src]; s != nil {
		s.playing = false
		s.finished = false
		s.onFinished = nil
	}
	d.mu.Unlock()
}

func (d *mockDevice) SetListenerGain(gain float32) {
	d.mu.Lock()
	d.listenerGain = gain
	d.mu.Unlock()
}

func (d *mockDevice) SetListenerPosition(x, y, z float32) {
	d.mu.Lock()
	d.listenerPos = [3]float32{x, y, z}
	d.mu.Unlock()
}

func (d *mockDevice) Update() {
	d.mu.Lock()
	d.nUpdate++
	var toFire []func()
	for _, s := range d.sources {
		if s.finished && s.onFinished != nil {
			toFire = append(toFire, s.onFinished)
			s.onFinished = nil
			s.finished = false
			s.playing = false
		}
	}
	d.mu.Unlock()
	for _, f := range toFire {
		f()
	}
}

func (d *mockDevice) LastError() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func (d *mockDevice) ClearError() {
	d.mu.Lock()
	d.lastErr = ""
	d.mu.Unlock()
}

// mockLibrary is a NativeLibrary backed entirely by in-memory state a test
// can mutate on the fly (renaming the device set simulates hot-plug churn
// for the device-scan tests).
type mockLibrary struct {
	mu          sync.Mutex
	names       []string
	defaultName string
	enumErr     error
	openErr     map[string]error
	devices     map[string]*mockDevice
	autoFinish  map[string]map[string]time.Duration
}

func newMockLibrary(names ...string) *mockLibrary {
	l := &mockLibrary{
		names:      append([]string(nil), names...),
		openErr:    make(map[string]error),
		devices:    make(map[string]*mockDevice),
		autoFinish: make(map[string]map[string]time.Duration),
	}
	if len(names) > 0 {
		l.defaultName = names[0]
	}
	return l
}

func (l *mockLibrary) EnumerateDevices() ([]string, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.enumErr != nil {
		return nil, "", l.enumErr
	}
	return append([]string(nil), l.names...), l.defaultName, nil
}

func (l *mockLibrary) OpenDevice(name string) (NativeDevice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, ok := l.openErr[name]; ok {
		return nil, err
	}
	d := newMockDevice(name)
	for path, delay := range l.autoFinish[name] {
		d.autoFinishByPath[path] = delay
	}
	l.devices[name] = d
	return d, nil
}

// setAutoFinish arranges for a sound played from path on deviceName to
// report finished after delay, the next time the worker's Update tick
// observes it. Safe to call before or after the device has been opened.
func (l *mockLibrary) setAutoFinish(deviceName, path string, delay time.Duration) {
	l.mu.Lock()
	m := l.autoFinish[deviceName]
	if m == nil {
		m = make(map[string]time.Duration)
		l.autoFinish[deviceName] = m
	}
	m[path] = delay
	d := l.devices[deviceName]
	l.mu.Unlock()
	if d != nil {
		d.mu.Lock()
		d.autoFinishByPath[path] = delay
		d.mu.Unlock()
	}
}

// setNames replaces the enumerated device set, simulating a hot-plug event
// the worker's next device scan will observe.
func (l *mockLibrary) setNames(names []string, defaultName string) {
	l.mu.Lock()
	l.names = append([]string(nil), names...)
	l.defaultName = defaultName
	l.mu.Unlock()
}

func (l *mockLibrary) deviceByName(name string) *mockDevice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.devices[name]
}

// recordingListener funnels every callback onto buffered channels so tests
// can block on a specific event with a bounded timeout instead of polling.
type recordingListener struct {
	finishedCh chan FinishedEvent
	mgmtCh     chan mgmtRecord
}

type mgmtRecord struct {
	kind     DeviceMgmtKind
	deviceID int32
	name     string
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		finishedCh: make(chan FinishedEvent, 256),
		mgmtCh:     make(chan mgmtRecord, 256),
	}
}

func (l *recordingListener) OnSoundFinished(evt *FinishedEvent) {
	l.finishedCh <- *evt
}

func (l *recordingListener) OnDeviceManagement(kind DeviceMgmtKind, deviceID int32, name string) {
	l.mgmtCh <- mgmtRecord{kind, deviceID, name}
}
