package alcore

import (
	"sync"
	"unsafe"
)

// SoundData mirrors the native library's paired (sound id, file id) result
// returned by the path/bytes overloads of PlaySound. Both fields are -1 when
// the call could not start a sound at all.
type SoundData struct {
	SoundID int32
	FileID  int32
}

// soundTrack is the application-visible record of one sound this device
// believes is active: just enough to validate later calls and to decide
// listener visibility when it finishes.
type soundTrack struct {
	soundID int32
	startAt int64
}

type fileBufEntry struct {
	size   int
	fileID int32
}

// PlaybackDevice is the application-visible handle for one playback device.
// It validates inputs, allocates logical ids, and posts Commands to the
// worker; it never touches the native audio library directly, and every
// method here is safe to call from any goroutine.
type PlaybackDevice struct {
	mgr  *Manager
	id   int32
	name string

	mu         sync.Mutex
	isDefault  bool
	pathToFile map[string]int32
	bufToFile  map[unsafe.Pointer]fileBufEntry
	active     []soundTrack
}

func newPlaybackDevice(mgr *Manager, id int32, name string, isDefault bool) *PlaybackDevice {
	return &PlaybackDevice{
		mgr:        mgr,
		id:         id,
		name:       name,
		isDefault:  isDefault,
		pathToFile: make(map[string]int32),
		bufToFile:  make(map[unsafe.Pointer]fileBufEntry),
	}
}

// bufferKey treats a memory buffer's first-byte address as its identity, the
// same pointer-identity contract the native backend uses: passing a
// different slice with the same contents preloads it again, and reusing the
// same backing array with different contents after the fact is undefined.
func bufferKey(buf []byte) unsafe.Pointer {
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Pointer(&buf[0])
}

func (pd *PlaybackDevice) ID() int32   { return pd.id }
func (pd *PlaybackDevice) Name() string { return pd.name }

func (pd *PlaybackDevice) IsDefaultDevice() bool {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	return pd.isDefault
}

func (pd *PlaybackDevice) setIsDefault(v bool) {
	pd.mu.Lock()
	pd.isDefault = v
	pd.mu.Unlock()
}

// PreloadSound registers path for playback and returns its file id,
// preloading it on the worker at most once no matter how many times it is
// called with the same path.
func (pd *PlaybackDevice) PreloadSound(path string) int32 {
	if path == "" || pd.mgr.isClosed() {
		return -1
	}
	pd.mu.Lock()
	defer pd.mu.Unlock()
	if id, ok := pd.pathToFile[path]; ok {
		return id
	}
	id := pd.mgr.fileIDs.allocate()
	pd.pathToFile[path] = id
	pd.mgr.postCommand(Command{Kind: CmdPreload, DeviceID: pd.id, FileID: id, FilePath: path})
	return id
}

// PreloadSoundBytes is the in-memory-buffer counterpart of PreloadSound.
func (pd *PlaybackDevice) PreloadSoundBytes(buf []byte) int32 {
	if len(buf) == 0 || pd.mgr.isClosed() {
		return -1
	}
	key := bufferKey(buf)
	pd.mu.Lock()
	defer pd.mu.Unlock()
	if e, ok := pd.bufToFile[key]; ok && e.size == len(buf) {
		return e.fileID
	}
	id := pd.mgr.fileIDs.allocate()
	pd.bufToFile[key] = fileBufEntry{size: len(buf), fileID: id}
	pd.mgr.postCommand(Command{Kind: CmdPreload, DeviceID: pd.id, FileID: id, Bytes: buf})
	return id
}

func (pd *PlaybackDevice) knownFileID(fileID int32) bool {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	for _, v := range pd.pathToFile {
		if v == fileID {
			return true
		}
	}
	for _, v := range pd.bufToFile {
		if v.fileID == fileID {
			return true
		}
	}
	return false
}

// PlaySoundFile preloads (if needed) and plays path, returning the new
// sound's logical id paired with its file id.
func (pd *PlaybackDevice) PlaySoundFile(path string, volume float64, loop, relative bool, x, y, z float64) SoundData {
	fileID := pd.PreloadSound(path)
	if fileID < 0 {
		return SoundData{SoundID: -1, FileID: -1}
	}
	return SoundData{SoundID: pd.startSound(fileID, path, nil, volume, loop, relative, x, y, z), FileID: fileID}
}

// PlaySoundBytes is the in-memory-buffer counterpart of PlaySoundFile.
func (pd *PlaybackDevice) PlaySoundBytes(buf []byte, volume float64, loop, relative bool, x, y, z float64) SoundData {
	fileID := pd.PreloadSoundBytes(buf)
	if fileID < 0 {
		return SoundData{SoundID: -1, FileID: -1}
	}
	return SoundData{SoundID: pd.startSound(fileID, "", buf, volume, loop, relative, x, y, z), FileID: fileID}
}

// PlaySoundFileID plays an already-preloaded file by id, returning -1 if
// fileID was never preloaded on this device.
func (pd *PlaybackDevice) PlaySoundFileID(fileID int32, volume float64, loop, relative bool, x, y, z float64) int32 {
	if pd.mgr.isClosed() || !pd.knownFileID(fileID) {
		return -1
	}
	return pd.startSound(fileID, "", nil, volume, loop, relative, x, y, z)
}

// Convenience overloads with the documented defaults: full volume, no loop,
// position relative to the listener at the origin.
func (pd *PlaybackDevice) PlaySoundFileDefault(path string) SoundData {
	return pd.PlaySoundFile(path, 1.0, false, true, 0, 0, 0)
}
func (pd *PlaybackDevice) PlaySoundBytesDefault(buf []byte) SoundData {
	return pd.PlaySoundBytes(buf, 1.0, false, true, 0, 0, 0)
}
func (pd *PlaybackDevice) PlaySoundFileIDDefault(fileID int32) int32 {
	return pd.PlaySoundFileID(fileID, 1.0, false, true, 0, 0, 0)
}

func (pd *PlaybackDevice) startSound(fileID int32, path string, buf []byte, volume float64, loop, relative bool, x, y, z float64) int32 {
	if pd.mgr.isClosed() {
		return -1
	}
	soundID := pd.mgr.soundIDs.allocate()
	startAt := pd.mgr.timestamps.next()
	pd.mu.Lock()
	pd.active = append(pd.active, soundTrack{soundID: soundID, startAt: startAt})
	pd.mu.Unlock()
	pd.mgr.postCommand(Command{
		Kind: CmdPlay, DeviceID: pd.id, SoundID: soundID, FileID: fileID,
		FilePath: path, Bytes: buf, Volume: volume, Loop: loop, Relative: relative, X: x, Y: y, Z: z,
	})
	return soundID
}

func (pd *PlaybackDevice) hasActiveLocked(soundID int32) bool {
	for _, s := range pd.active {
		if s.soundID == soundID {
			return true
		}
	}
	return false
}

func (pd *PlaybackDevice) removeActiveLocked(soundID int32) {
	for i, s := range pd.active {
		if s.soundID == soundID {
			last := len(pd.active) - 1
			pd.active[i] = pd.active[last]
			pd.active = pd.active[:last]
			return
		}
	}
}

func (pd *PlaybackDevice) SetSoundPos(soundID int32, x, y, z float64) bool {
	if pd.mgr.isClosed() {
		return false
	}
	pd.mu.Lock()
	ok := pd.hasActiveLocked(soundID)
	pd.mu.Unlock()
	if !ok {
		return false
	}
	pd.mgr.postCommand(Command{Kind: CmdSetSoundPos, DeviceID: pd.id, SoundID: soundID, X: x, Y: y, Z: z})
	return true
}

func (pd *PlaybackDevice) SetSoundVol(soundID int32, volume float64) bool {
	if pd.mgr.isClosed() {
		return false
	}
	pd.mu.Lock()
	ok := pd.hasActiveLocked(soundID)
	pd.mu.Unlock()
	if !ok {
		return false
	}
	pd.mgr.postCommand(Command{Kind: CmdSetSoundVol, DeviceID: pd.id, SoundID: soundID, Volume: volume})
	return true
}

func (pd *PlaybackDevice) PauseSound(soundID int32) bool  { return pd.postIfActive(CmdPause, soundID) }
func (pd *PlaybackDevice) ResumeSound(soundID int32) bool { return pd.postIfActive(CmdResume, soundID) }

func (pd *PlaybackDevice) StopSound(soundID int32) bool {
	if pd.mgr.isClosed() {
		return false
	}
	pd.mu.Lock()
	ok := pd.hasActiveLocked(soundID)
	if ok {
		pd.removeActiveLocked(soundID)
	}
	pd.mu.Unlock()
	if !ok {
		return false
	}
	// Stop suppresses the finished event: the sound is already gone from
	// local tracking before the worker ever processes the command, so any
	// racing completion callback finds nothing to dispatch against.
	pd.mgr.postCommand(Command{Kind: CmdStop, DeviceID: pd.id, SoundID: soundID})
	return true
}

func (pd *PlaybackDevice) postIfActive(kind CommandKind, soundID int32) bool {
	if pd.mgr.isClosed() {
		return false
	}
	pd.mu.Lock()
	ok := pd.hasActiveLocked(soundID)
	pd.mu.Unlock()
	if !ok {
		return false
	}
	pd.mgr.postCommand(Command{Kind: kind, DeviceID: pd.id, SoundID: soundID})
	return true
}

func (pd *PlaybackDevice) SetListenerPos(x, y, z float64) bool {
	if pd.mgr.isClosed() {
		return false
	}
	pd.mgr.postCommand(Command{Kind: CmdSetListenerPos, DeviceID: pd.id, X: x, Y: y, Z: z})
	return true
}

func (pd *PlaybackDevice) SetListenerVol(volume float64) bool {
	if pd.mgr.isClosed() {
		return false
	}
	pd.mgr.postCommand(Command{Kind: CmdSetListenerVol, DeviceID: pd.id, Volume: volume})
	return true
}

// PauseDevice and ResumeDevice report whether the command was accepted, not
// the device's previous paused state: that state lives on the worker side of
// the command queue and isn't available synchronously without a round trip
// this API doesn't otherwise need.
func (pd *PlaybackDevice) PauseDevice() bool {
	if pd.mgr.isClosed() {
		return false
	}
	pd.mgr.postCommand(Command{Kind: CmdPauseDevice, DeviceID: pd.id})
	return true
}

func (pd *PlaybackDevice) ResumeDevice() bool {
	if pd.mgr.isClosed() {
		return false
	}
	pd.mgr.postCommand(Command{Kind: CmdResumeDevice, DeviceID: pd.id})
	return true
}

func (pd *PlaybackDevice) StopAllSounds() {
	if pd.mgr.isClosed() {
		return
	}
	pd.mu.Lock()
	pd.active = nil
	pd.mu.Unlock()
	pd.mgr.postCommand(Command{Kind: CmdStopAll, DeviceID: pd.id})
}
