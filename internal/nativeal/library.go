// Package nativeal is the SDL_mixer-backed stand-in for the native 3D audio
// library the engine drives: it enumerates host output devices and opens
// each one as an independent alcore.NativeDevice, with SDL_mixer's own
// channel mixer doing the actual sample mixing, volume and panning for every
// allocated source.
package nativeal

import (
	"fmt"
	"sync"

	"github.com/veandco/go-sdl2/mix"
	"github.com/veandco/go-sdl2/sdl"

	"alcoretech.dev/alcore/internal/alcore"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init brings up the SDL audio subsystem and registers the SDL_mixer
// finished-channel hook. Safe to call more than once; only the first call
// does any work.
func Init() error {
	initOnce.Do(func() {
		if err := sdl.InitSubSystem(sdl.INIT_AUDIO); err != nil {
			initErr = fmt.Errorf("nativeal: SDL audio init failed: %w", err)
			return
		}
		mix.ChannelFinished(onChannelFinished)
	})
	return initErr
}

// Quit tears down the SDL audio subsystem.
func Quit() {
	sdl.QuitSubSystem(sdl.INIT_AUDIO)
}

// Library implements alcore.NativeLibrary over SDL2's audio device list.
type Library struct{}

func (Library) EnumerateDevices() (names []string, defaultName string, err error) {
	if err := Init(); err != nil {
		return nil, "", err
	}
	n := sdl.GetNumAudioDevices(false)
	if n < 0 {
		return nil, "", fmt.Errorf("nativeal: GetNumAudioDevices failed: %s", sdl.GetError())
	}
	names = make([]string, 0, n)
	for i := 0; i < n; i++ {
		if name := sdl.GetAudioDeviceName(i, false); name != "" {
			names = append(names, name)
		}
	}
	// SDL has no notion of "the" default device distinct from index 0; we
	// treat the first enumerated name as default, which is also what the
	// teacher's own device listing implicitly assumed.
	if len(names) > 0 {
		defaultName = names[0]
	}
	return names, defaultName, nil
}

func (Library) OpenDevice(name string) (alcore.NativeDevice, error) {
	return openDevice(name)
}
