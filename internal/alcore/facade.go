package alcore

// NativeLibrary is the black-box 3D audio backend the worker drives. Every
// method is called only from the worker goroutine, never concurrently with
// itself.
type NativeLibrary interface {
	// EnumerateDevices returns the ordered device names currently available
	// and the name of the host's default device ("" if it cannot be
	// determined).
	EnumerateDevices() (names []string, defaultName string, err error)
	OpenDevice(name string) (NativeDevice, error)
}

// NativeDevice is a single opened native playback device: a buffer cache, a
// source pool and a listener, all scoped to this device. Every handle it
// hands out (buffer, source) is opaque to the worker and only meaningful to
// the NativeDevice that issued it.
type NativeDevice interface {
	Close()

	CreateBufferFromFile(path string) (buf uint64, err error)
	CreateBufferFromMemory(data []byte) (buf uint64, err error)
	DeleteBuffer(buf uint64)

	AllocateSource() (src uint64, err error)
	DeleteSource(src uint64)

	SetSourceGain(src uint64, gain float32)
	SetSourceLoop(src uint64, loop bool)
	SetSourceRelative(src uint64, relative bool)
	SetSourcePosition(src uint64, x, y, z float32)
	BindSourceBuffer(src uint64, buf uint64) // buf == 0 detaches

	// Play starts src playing whatever buffer is currently bound to it.
	// onFinished is invoked at most once, synchronously from within a later
	// call to Update, when playback runs off the end of a non-looping
	// buffer. It is never invoked after Stop, and never invoked twice.
	Play(src uint64, onFinished func()) error
	Pause(src uint64)
	Resume(src uint64)
	Stop(src uint64)

	SetListenerGain(gain float32)
	SetListenerPosition(x, y, z float32)

	// Update polls for sources that finished playing since the previous
	// call and fires their onFinished callbacks. The worker calls this on
	// its own fixed interval; nothing else triggers a finished callback.
	Update()

	LastError() string
	ClearError()
}
