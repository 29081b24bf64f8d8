package alcore

import (
	"math"
	"sync/atomic"
	"time"
)

// baseWaitInterval bounds how long the worker ever sleeps between passes
// over the command queue, even when nothing wakes it early.
const baseWaitInterval = 10 * time.Millisecond

// DeviceInfo is the phase-1 startup snapshot the worker hands the caller
// thread for one device it has already opened.
type DeviceInfo struct {
	ID        int32
	Name      string
	IsDefault bool
}

// worker owns every native device and runs the three-phase startup
// handshake and main command/update loop described for the playback engine.
// Nothing outside this goroutine touches a deviceRecord once run() starts.
type worker struct {
	lib NativeLibrary

	cmdQ *commandQueue
	evtQ *eventQueue

	shutdown atomic.Bool

	devicesReady   chan struct{}
	devicesCreated chan struct{}
	done           chan struct{}

	devices         []*deviceRecord
	lastDeviceNames []string
	initialDevices  []DeviceInfo
	enumErr         string

	updateInterval  time.Duration
	devScanInterval time.Duration
	preferredName   string

	lastUpdate  time.Time
	lastDevScan time.Time
}

func newWorker(lib NativeLibrary, updateInterval, devScanInterval time.Duration, preferredName string) *worker {
	return &worker{
		lib:             lib,
		cmdQ:            newCommandQueue(),
		evtQ:            newEventQueue(),
		devicesReady:    make(chan struct{}),
		devicesCreated:  make(chan struct{}),
		done:            make(chan struct{}),
		updateInterval:  updateInterval,
		devScanInterval: devScanInterval,
		preferredName:   preferredName,
	}
}

// orderByPreference moves preferred to the front of names, if present,
// leaving the rest in the order the backend reported them. Device ids are
// assigned by position during (re)creation, so this is what makes
// preferredName the worker's opening-order hint rather than a hard filter.
func orderByPreference(names []string, preferred string) []string {
	if preferred == "" {
		return names
	}
	idx := -1
	for i, n := range names {
		if n == preferred {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return names
	}
	out := make([]string, 0, len(names))
	out = append(out, names[idx])
	out = append(out, names[:idx]...)
	out = append(out, names[idx+1:]...)
	return out
}

// start launches the worker goroutine and blocks only until phase 1
// completes (devices enumerated and opened), returning the initial
// device snapshot. The caller must close w.devicesCreated once it has
// finished building its own device objects, which releases the worker into
// its main loop.
func (w *worker) start() ([]DeviceInfo, string) {
	go w.run()
	<-w.devicesReady
	return w.initialDevices, w.enumErr
}

func (w *worker) run() {
	defer close(w.done)

	names, defaultName, err := w.lib.EnumerateDevices()
	if err != nil {
		w.enumErr = err.Error()
		close(w.devicesReady)
		<-w.devicesCreated
		return
	}
	names = orderByPreference(names, w.preferredName)

	w.devices = make([]*deviceRecord, 0, len(names))
	w.initialDevices = make([]DeviceInfo, 0, len(names))
	for _, name := range names {
		nd, oerr := w.lib.OpenDevice(name)
		if oerr != nil {
			continue
		}
		id := int32(len(w.devices))
		rec := &deviceRecord{id: id, name: name, native: nd, isDefault: name == defaultName}
		w.devices = append(w.devices, rec)
		w.initialDevices = append(w.initialDevices, DeviceInfo{ID: id, Name: name, IsDefault: rec.isDefault})
	}
	w.lastDeviceNames = names

	close(w.devicesReady)
	<-w.devicesCreated

	w.lastUpdate = time.Now()
	w.lastDevScan = time.Now()
	w.mainLoop()
}

func (w *worker) mainLoop() {
	for {
		if w.shutdown.Load() {
			w.shutdownAllDevices()
			return
		}

		select {
		case <-w.cmdQ.notify:
		case <-time.After(baseWaitInterval):
		}

		if w.shutdown.Load() {
			w.shutdownAllDevices()
			return
		}

		w.drainAndExecute()

		now := time.Now()
		if now.Sub(w.lastUpdate) >= w.updateInterval {
			w.runUpdate()
			w.lastUpdate = now
		}
		if now.Sub(w.lastDevScan) >= w.devScanInterval {
			w.scanDevices()
			w.lastDevScan = now
		}

		// Commands may have arrived while native calls above ran; pick
		// them up now instead of waiting a full baseWaitInterval.
		w.drainAndExecute()
	}
}

func (w *worker) drainAndExecute() {
	for {
		batch := w.cmdQ.drain()
		if len(batch) == 0 {
			return
		}
		for _, c := range batch {
			w.execute(c)
		}
	}
}

func (w *worker) deviceByID(id int32) *deviceRecord {
	if id < 0 || int(id) >= len(w.devices) {
		return nil
	}
	return w.devices[id]
}

func (w *worker) postCommand(c Command)   { w.cmdQ.push(c) }
func (w *worker) drainEvents() []Event    { return w.evtQ.drain() }
func (w *worker) wait()                   { <-w.done }
func (w *worker) requestShutdown() {
	w.shutdown.Store(true)
	select {
	case w.cmdQ.notify <- struct{}{}:
	default:
	}
}

func (w *worker) execute(c Command) {
	rec := w.deviceByID(c.DeviceID)
	if rec == nil || rec.removed {
		return
	}
	switch c.Kind {
	case CmdPreload:
		w.ensureBuffer(rec, c.FileID, c.FilePath, c.Bytes)
	case CmdPlay:
		w.executePlay(rec, c)
	case CmdPause:
		w.executePause(rec, c.SoundID)
	case CmdResume:
		w.executeResume(rec, c.SoundID)
	case CmdStop:
		w.executeStop(rec, c.SoundID)
	case CmdPauseDevice:
		w.executePauseDevice(rec)
	case CmdResumeDevice:
		w.executeResumeDevice(rec)
	case CmdStopAll:
		w.executeStopAll(rec)
	case CmdSetSoundPos:
		w.executeSetSoundPos(rec, c)
	case CmdSetSoundVol:
		w.executeSetSoundVol(rec, c)
	case CmdSetListenerPos:
		rec.native.SetListenerPosition(clampCoord(c.X), clampCoord(c.Y), clampCoord(c.Z))
	case CmdSetListenerVol:
		rec.native.SetListenerGain(clampVolume(c.Volume))
	}
}

func (w *worker) ensureBuffer(rec *deviceRecord, fileID int32, path string, data []byte) (uint64, bool) {
	if handle, ok := rec.bufferHandle(fileID); ok {
		return handle, true
	}
	var handle uint64
	var err error
	if len(data) > 0 {
		handle, err = rec.native.CreateBufferFromMemory(data)
	} else {
		handle, err = rec.native.CreateBufferFromFile(path)
	}
	if err != nil {
		return 0, false
	}
	rec.buffers = append(rec.buffers, bufferEntry{fileID: fileID, handle: handle})
	return handle, true
}

func (w *worker) executePlay(rec *deviceRecord, c Command) {
	rec.native.ClearError()
	handle, ok := w.ensureBuffer(rec, c.FileID, c.FilePath, c.Bytes)
	if !ok {
		w.evtQ.push(Event{Kind: EvtPlayError, DeviceID: rec.id, FileID: c.FileID, SoundID: c.SoundID, Err: rec.native.LastError()})
		return
	}

	src := rec.acquireSource()
	if src == 0 {
		var err error
		src, err = rec.native.AllocateSource()
		if err != nil {
			w.evtQ.push(Event{Kind: EvtPlayError, DeviceID: rec.id, FileID: c.FileID, SoundID: c.SoundID, Err: err.Error()})
			return
		}
	}

	rec.native.SetSourceGain(src, clampVolume(c.Volume))
	rec.native.SetSourceLoop(src, c.Loop)
	rec.native.SetSourceRelative(src, c.Relative)
	rec.native.SetSourcePosition(src, clampCoord(c.X), clampCoord(c.Y), clampCoord(c.Z))
	rec.native.BindSourceBuffer(src, handle)

	rec.activeSounds = append(rec.activeSounds, activeSound{
		soundID:                  c.SoundID,
		source:                   src,
		startedWhileDevicePaused: rec.paused,
	})

	deviceID, soundID := rec.id, c.SoundID
	if err := rec.native.Play(src, func() { w.onNativeFinished(deviceID, soundID) }); err != nil {
		rec.removeActiveSound(soundID)
		rec.unusedSources = append(rec.unusedSources, src)
		w.evtQ.push(Event{Kind: EvtPlayError, DeviceID: rec.id, FileID: c.FileID, SoundID: c.SoundID, Err: err.Error()})
	}
}

// onNativeFinished runs on the worker goroutine (the facade calls it
// synchronously from Update) and performs the recycling steps: detach the
// buffer, return the source to the unused pool, drop the active-sound
// record, and post the finished event for the caller thread to dispatch.
func (w *worker) onNativeFinished(deviceID, soundID int32) {
	rec := w.deviceByID(deviceID)
	if rec == nil || rec.removed {
		return
	}
	as, ok := rec.removeActiveSound(soundID)
	if !ok {
		return
	}
	rec.native.BindSourceBuffer(as.source, 0)
	rec.unusedSources = append(rec.unusedSources, as.source)
	w.evtQ.push(Event{Kind: EvtSoundFinished, DeviceID: deviceID, SoundID: soundID})
}

func (w *worker) executePause(rec *deviceRecord, soundID int32) {
	for i := range rec.activeSounds {
		as := &rec.activeSounds[i]
		if as.soundID != soundID || as.paused {
			continue
		}
		as.paused = true
		if !rec.paused || as.startedWhileDevicePaused {
			rec.native.Pause(as.source)
		}
		return
	}
}

func (w *worker) executeResume(rec *deviceRecord, soundID int32) {
	for i := range rec.activeSounds {
		as := &rec.activeSounds[i]
		if as.soundID != soundID || !as.paused {
			continue
		}
		as.paused = false
		if !rec.paused || as.startedWhileDevicePaused {
			rec.native.Resume(as.source)
		}
		return
	}
}

func (w *worker) executeStop(rec *deviceRecord, soundID int32) {
	as, ok := rec.removeActiveSound(soundID)
	if !ok {
		return
	}
	rec.native.Stop(as.source)
	rec.native.BindSourceBuffer(as.source, 0)
	rec.unusedSources = append(rec.unusedSources, as.source)
}

func (w *worker) executePauseDevice(rec *deviceRecord) {
	if rec.paused {
		return
	}
	for i := range rec.activeSounds {
		as := &rec.activeSounds[i]
		if !as.paused {
			rec.native.Pause(as.source)
		}
	}
	rec.paused = true
}

func (w *worker) executeResumeDevice(rec *deviceRecord) {
	if !rec.paused {
		return
	}
	for i := range rec.activeSounds {
		as := &rec.activeSounds[i]
		if as.paused {
			continue
		}
		if as.startedWhileDevicePaused {
			as.startedWhileDevicePaused = false
			continue
		}
		rec.native.Resume(as.source)
	}
	rec.paused = false
}

func (w *worker) executeStopAll(rec *deviceRecord) {
	for len(rec.activeSounds) > 0 {
		as := rec.activeSounds[0]
		last := len(rec.activeSounds) - 1
		rec.activeSounds[0] = rec.activeSounds[last]
		rec.activeSounds = rec.activeSounds[:last]
		rec.native.Stop(as.source)
		rec.native.BindSourceBuffer(as.source, 0)
		rec.unusedSources = append(rec.unusedSources, as.source)
	}
}

func (w *worker) executeSetSoundPos(rec *deviceRecord, c Command) {
	for _, as := range rec.activeSounds {
		if as.soundID == c.SoundID {
			rec.native.SetSourcePosition(as.source, clampCoord(c.X), clampCoord(c.Y), clampCoord(c.Z))
			return
		}
	}
}

func (w *worker) executeSetSoundVol(rec *deviceRecord, c Command) {
	for _, as := range rec.activeSounds {
		if as.soundID == c.SoundID {
			rec.native.SetSourceGain(as.source, clampVolume(c.Volume))
			return
		}
	}
}

func (w *worker) runUpdate() {
	for _, rec := range w.devices {
		if rec == nil || rec.removed {
			continue
		}
		rec.native.Update()
	}
}

// scanDevices implements the hot-plug policy: if the set of device names
// changed at all, tear every device down and recreate the whole vector from
// scratch; otherwise leave everything alone except re-checking which
// existing device is now the host default.
func (w *worker) scanDevices() {
	names, defaultName, err := w.lib.EnumerateDevices()
	if err != nil {
		return
	}
	if !sameNameSet(w.lastDeviceNames, names) {
		w.recreateAllDevices(orderByPreference(names, w.preferredName), defaultName)
		w.lastDeviceNames = names
		return
	}
	w.lastDeviceNames = names
	for _, rec := range w.devices {
		if rec == nil || rec.removed {
			continue
		}
		wantDefault := rec.name == defaultName
		if wantDefault != rec.isDefault {
			rec.isDefault = wantDefault
			w.evtQ.push(Event{Kind: EvtDeviceChanged, DeviceID: rec.id, IsDefault: wantDefault})
		}
	}
}

func sameNameSet(old, cur []string) bool {
	if len(old) != len(cur) {
		return false
	}
	seen := make(map[string]bool, len(cur))
	for _, n := range cur {
		seen[n] = true
	}
	for _, n := range old {
		if !seen[n] {
			return false
		}
	}
	return true
}

func (w *worker) recreateAllDevices(names []string, defaultName string) {
	for _, rec := range w.devices {
		if rec == nil || rec.removed {
			continue
		}
		w.shutdownDevice(rec)
		w.evtQ.push(Event{Kind: EvtDeviceRemoved, DeviceID: rec.id})
	}
	w.devices = w.devices[:0]
	for _, name := range names {
		nd, err := w.lib.OpenDevice(name)
		if err != nil {
			continue
		}
		id := int32(len(w.devices))
		isDefault := name == defaultName
		rec := &deviceRecord{id: id, name: name, native: nd, isDefault: isDefault}
		w.devices = append(w.devices, rec)
		w.evtQ.push(Event{Kind: EvtDeviceAdded, DeviceID: id, DeviceName: name, IsDefault: isDefault})
	}
}

func (w *worker) shutdownDevice(rec *deviceRecord) {
	for _, as := range rec.activeSounds {
		rec.native.Stop(as.source)
		rec.native.BindSourceBuffer(as.source, 0)
	}
	rec.activeSounds = nil
	for _, b := range rec.buffers {
		rec.native.DeleteBuffer(b.handle)
	}
	rec.buffers = nil
	rec.unusedSources = nil
	rec.native.Close()
	rec.removed = true
}

func (w *worker) shutdownAllDevices() {
	for _, rec := range w.devices {
		if rec == nil || rec.removed {
			continue
		}
		w.shutdownDevice(rec)
	}
}

func clampVolume(v float64) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return float32(v)
	}
}

func clampCoord(v float64) float32 {
	switch {
	case v > math.MaxFloat32:
		return math.MaxFloat32
	case v < -math.MaxFloat32:
		return -math.MaxFloat32
	default:
		return float32(v)
	}
}
