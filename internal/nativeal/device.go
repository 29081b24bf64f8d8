package nativeal

import (
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/veandco/go-sdl2/mix"
	"github.com/veandco/go-sdl2/sdl"
)

const (
	mixFreq      = 48000
	mixFormat    = sdl.AUDIO_S16SYS
	mixChannels  = 2
	mixChunkSize = 1024
	mixAllow     = sdl.AUDIO_ALLOW_ANY_CHANGE

	// maxPanDistance is the lateral distance, in scene units, at which a
	// non-relative source pans fully to one side.
	maxPanDistance = 10
)

// liveMu/live track which opened Device currently owns SDL_mixer's single
// process-wide mixing context. SDL_mixer has no notion of more than one
// simultaneously open device: Mix_OpenAudioDevice silently takes over
// whichever device previously held it. Every Device still keeps its own
// chunk cache, channel table and active-sound bookkeeping independently of
// this. live is set only when a Device is opened (and cleared when the live
// Device closes); nothing makes an earlier Device live again once a later
// one has been opened. Only one device's hardware output is ever actually
// audible at a time, matching the reference mixer's own single-device usage.
var (
	liveMu sync.Mutex
	live   *Device
)

func onChannelFinished(channel int) {
	liveMu.Lock()
	d := live
	liveMu.Unlock()
	if d != nil {
		d.markFinished(channel)
	}
}

// channelState is one allocated SDL_mixer channel standing in for a native
// source: its binding, parameters and pending completion callback.
type channelState struct {
	channel  int
	bufID    uint64
	loop     bool
	relative bool
	position mgl32.Vec3
	gain     float32

	onFinished func()
}

// Device is one opened SDL_mixer playback device: a chunk cache and a
// channel pool standing in for sources, mixed and played by SDL_mixer
// itself rather than by any sample-level code here.
type Device struct {
	mu   sync.Mutex
	name string

	chunks    map[uint64]*mix.Chunk
	nextBufID uint64

	channels      map[uint64]*channelState
	nextChannelNo int
	freeChannels  []int
	allocated     int

	listenerGain float32
	listenerPos  mgl32.Vec3

	finishedQueue []*channelState

	lastErr string
}

func openDevice(name string) (*Device, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	if err := mix.OpenAudioDevice(mixFreq, mixFormat, mixChannels, mixChunkSize, name, mixAllow); err != nil {
		if name == "" {
			return nil, fmt.Errorf("nativeal: OpenAudioDevice: %w", err)
		}
		if err2 := mix.OpenAudioDevice(mixFreq, mixFormat, mixChannels, mixChunkSize, "", mixAllow); err2 != nil {
			return nil, fmt.Errorf("nativeal: OpenAudioDevice(%q) and fallback to default both failed: %w", name, err2)
		}
	}

	d := &Device{
		name:         name,
		chunks:       make(map[uint64]*mix.Chunk),
		channels:     make(map[uint64]*channelState),
		listenerGain: 1,
	}
	liveMu.Lock()
	live = d
	liveMu.Unlock()
	return d, nil
}

func (d *Device) Close() {
	d.mu.Lock()
	for _, cs := range d.channels {
		mix.HaltChannel(cs.channel)
	}
	for _, c := range d.chunks {
		c.Free()
	}
	d.mu.Unlock()

	liveMu.Lock()
	if live == d {
		mix.CloseAudio()
		live = nil
	}
	liveMu.Unlock()
}

func (d *Device) CreateBufferFromFile(path string) (uint64, error) {
	chunk, err := mix.LoadWAV(path)
	if err != nil {
		err = fmt.Errorf("nativeal: LoadWAV(%q): %w", path, err)
		d.setErr(err.Error())
		return 0, err
	}
	return d.storeChunk(chunk), nil
}

func (d *Device) CreateBufferFromMemory(data []byte) (uint64, error) {
	rw, err := sdl.RWFromMem(data)
	if err != nil {
		err = fmt.Errorf("nativeal: RWFromMem: %w", err)
		d.setErr(err.Error())
		return 0, err
	}
	chunk, err := mix.LoadWAVRW(rw, 1)
	if err != nil {
		err = fmt.Errorf("nativeal: LoadWAVRW: %w", err)
		d.setErr(err.Error())
		return 0, err
	}
	return d.storeChunk(chunk), nil
}

func (d *Device) storeChunk(c *mix.Chunk) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextBufID++
	id := d.nextBufID
	d.chunks[id] = c
	return id
}

func (d *Device) DeleteBuffer(buf uint64) {
	d.mu.Lock()
	c := d.chunks[buf]
	delete(d.chunks, buf)
	d.mu.Unlock()
	if c != nil {
		c.Free()
	}
}

// AllocateSource hands out an SDL_mixer channel number, growing the
// process's channel pool via Mix_AllocateChannels only when the free list
// is empty, and reusing released channel numbers otherwise.
func (d *Device) AllocateSource() (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ch int
	if n := len(d.freeChannels); n > 0 {
		ch = d.freeChannels[n-1]
		d.freeChannels = d.freeChannels[:n-1]
	} else {
		ch = d.nextChannelNo
		d.nextChannelNo++
		if ch >= d.allocated {
			d.allocated = ch + 1
			mix.AllocateChannels(d.allocated)
		}
	}
	handle := uint64(ch) + 1
	d.channels[handle] = &channelState{channel: ch, gain: 1}
	return handle, nil
}

func (d *Device) DeleteSource(src uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cs, ok := d.channels[src]
	if !ok {
		return
	}
	delete(d.channels, src)
	d.freeChannels = append(d.freeChannels, cs.channel)
}

func (d *Device) SetSourceGain(src uint64, gain float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cs := d.channels[src]; cs != nil {
		cs.gain = gain
		d.applyVolumePanLocked(cs)
	}
}

func (d *Device) SetSourceLoop(src uint64, loop bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cs := d.channels[src]; cs != nil {
		cs.loop = loop
	}
}

func (d *Device) SetSourceRelative(src uint64, relative bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cs := d.channels[src]; cs != nil {
		cs.relative = relative
		d.applyVolumePanLocked(cs)
	}
}

func (d *Device) SetSourcePosition(src uint64, x, y, z float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cs := d.channels[src]; cs != nil {
		cs.position = mgl32.Vec3{x, y, z}
		d.applyVolumePanLocked(cs)
	}
}

func (d *Device) BindSourceBuffer(src, buf uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cs := d.channels[src]; cs != nil {
		cs.bufID = buf
	}
}

func (d *Device) Play(src uint64, onFinished func()) error {
	d.mu.Lock()
	cs := d.channels[src]
	if cs == nil {
		d.mu.Unlock()
		return fmt.Errorf("nativeal: unknown source %d", src)
	}
	chunk := d.chunks[cs.bufID]
	if chunk == nil {
		d.mu.Unlock()
		return fmt.Errorf("nativeal: source %d has no bound buffer", src)
	}
	cs.onFinished = onFinished
	loops := 0
	if cs.loop {
		loops = -1
	}
	channel := cs.channel
	d.applyVolumePanLocked(cs)
	d.mu.Unlock()

	if _, err := chunk.Play(channel, loops); err != nil {
		err = fmt.Errorf("nativeal: Play channel %d: %w", channel, err)
		d.setErr(err.Error())
		return err
	}
	return nil
}

func (d *Device) Pause(src uint64) {
	d.mu.Lock()
	cs := d.channels[src]
	d.mu.Unlock()
	if cs != nil {
		mix.Pause(cs.channel)
	}
}

func (d *Device) Resume(src uint64) {
	d.mu.Lock()
	cs := d.channels[src]
	d.mu.Unlock()
	if cs != nil {
		mix.Resume(cs.channel)
	}
}

// Stop clears the pending callback before halting the channel: halting a
// channel runs SDL_mixer's own finished-channel hook, and a sound that was
// explicitly stopped must never surface as a finished event.
func (d *Device) Stop(src uint64) {
	d.mu.Lock()
	cs := d.channels[src]
	if cs != nil {
		cs.onFinished = nil
	}
	d.mu.Unlock()
	if cs != nil {
		mix.HaltChannel(cs.channel)
	}
}

func (d *Device) SetListenerGain(gain float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listenerGain = gain
	for _, cs := range d.channels {
		d.applyVolumePanLocked(cs)
	}
}

func (d *Device) SetListenerPosition(x, y, z float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listenerPos = mgl32.Vec3{x, y, z}
	for _, cs := range d.channels {
		d.applyVolumePanLocked(cs)
	}
}

// Update fires the onFinished callback, exactly once, for every channel
// SDL_mixer's finished-channel hook has reported since the previous call.
func (d *Device) Update() {
	d.mu.Lock()
	queued := d.finishedQueue
	d.finishedQueue = nil
	d.mu.Unlock()

	for _, cs := range queued {
		d.mu.Lock()
		cb := cs.onFinished
		cs.onFinished = nil
		d.mu.Unlock()
		if cb != nil {
			cb()
		}
	}
}

func (d *Device) markFinished(channel int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cs := range d.channels {
		if cs.channel == channel {
			d.finishedQueue = append(d.finishedQueue, cs)
			return
		}
	}
}

func (d *Device) LastError() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func (d *Device) ClearError() {
	d.mu.Lock()
	d.lastErr = ""
	d.mu.Unlock()
}

func (d *Device) setErr(s string) {
	d.mu.Lock()
	d.lastErr = s
	d.mu.Unlock()
}

// applyVolumePanLocked pushes a channel's combined gain and lateral position
// down to SDL_mixer's own Mix_Volume/Mix_SetPanning, in place of summing and
// attenuating samples by hand: the distance/pan math is the same simplified
// approximation the engine always used, but the actual sample mixing is now
// entirely SDL_mixer's job. Callers must hold d.mu.
func (d *Device) applyVolumePanLocked(cs *channelState) {
	base := clampUnit(cs.gain) * clampUnit(d.listenerGain) * attenuate(cs, d.listenerPos)
	mix.Volume(cs.channel, int(clampUnit(base)*float32(mix.MAX_VOLUME)))
	left, right := pan(cs, d.listenerPos)
	mix.SetPanning(cs.channel, left, right)
}

func attenuate(cs *channelState, listenerPos mgl32.Vec3) float32 {
	if cs.relative {
		return 1
	}
	dist := cs.position.Sub(listenerPos).Len()
	if dist < 1 {
		return 1
	}
	return 1 / dist
}

// pan computes independent left/right SDL_mixer panning bytes from a
// source's lateral offset: the side nearer the source stays at full volume
// while the far side ramps down, rather than the constant-power law
// a full spatializer would use.
func pan(cs *channelState, listenerPos mgl32.Vec3) (left, right uint8) {
	if cs.relative {
		return 255, 255
	}
	rel := cs.position.Sub(listenerPos)
	p := rel.X() / maxPanDistance
	if p > 1 {
		p = 1
	} else if p < -1 {
		p = -1
	}
	lf, rf := float32(1), float32(1)
	if p > 0 {
		lf = 1 - p
	} else if p < 0 {
		rf = 1 + p
	}
	return byteFromUnit(lf), byteFromUnit(rf)
}

func clampUnit(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func byteFromUnit(v float32) uint8 {
	return uint8(clampUnit(v) * 255)
}
