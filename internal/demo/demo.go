// Package demo wires the playback engine's ambient stack together and
// drives it end to end: configuration, logging, persistence, the
// SDL-backed native audio façade, and the device manager itself. It is the
// headless counterpart of the reference application's Run(), with the
// OpenGL window and page stack replaced by a short demonstration sequence
// followed by a wait for interrupt.
package demo

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"alcoretech.dev/alcore/internal/alcore"
	"alcoretech.dev/alcore/internal/config"
	"alcoretech.dev/alcore/internal/db"
	"alcoretech.dev/alcore/internal/logger"
	"alcoretech.dev/alcore/internal/nativeal"
)

// Run brings up the full stack, plays soundPath (if non-empty) on the
// default device, and blocks until interrupted or ctx is done.
func Run(ctx context.Context, soundPath string) error {
	cfg := config.Get()

	if err := logger.InitLogger(); err != nil {
		return fmt.Errorf("demo: logger init failed: %w", err)
	}
	defer logger.Get().Close()

	dbPath := filepath.Join(cfg.DBDir, "data.db")
	if err := db.InitDatabase(dbPath); err != nil {
		return fmt.Errorf("demo: database init failed: %w", err)
	}
	// The sqlite-backed Config table supersedes settings.json once gorm is
	// up: re-apply whatever it holds onto the in-memory singleton, the same
	// redundant JSON+sqlite settings split the reference application keeps.
	if err := applyDBOverrides(cfg); err != nil {
		logger.LogWarningF("could not apply database-backed configuration overrides: %v", err)
	}

	if err := nativeal.Init(); err != nil {
		return fmt.Errorf("demo: audio backend init failed: %w", err)
	}
	defer nativeal.Quit()

	mgr, err := alcore.New(nativeal.Library{},
		alcore.WithUpdateInterval(time.Duration(cfg.UpdateIntervalMillis)*time.Millisecond),
		alcore.WithDeviceScanInterval(time.Duration(cfg.DeviceScanIntervalMillis)*time.Millisecond),
		alcore.WithEventPumpInterval(time.Duration(cfg.EventPumpIntervalMillis)*time.Millisecond),
		alcore.WithPreferredDeviceName(cfg.PreferredDeviceName),
	)
	if err != nil {
		logger.LogErrorF("could not start audio device manager: %v", err)
		return fmt.Errorf("demo: could not start audio device manager: %w", err)
	}

	l := &eventLogger{}
	mgr.AddListener(l, true)

	devices := mgr.Devices()
	logger.LogInfoF("Discovered %d playback device(s)", len(devices))

	dev := mgr.GetDefaultPlayback()
	if dev == nil && len(devices) > 0 {
		dev = devices[0]
	}

	if dev != nil {
		dev.SetListenerVol(float64(cfg.LastListenerVolume) / 128.0)
		if err := db.SetConfigValue("preferred_device_name", dev.Name()); err != nil {
			logger.LogWarningF("could not persist preferred device name: %v", err)
		}
		if soundPath != "" {
			sound := dev.PlaySoundFileDefault(soundPath)
			logger.LogInfoF("Playing %s on %q -> sound=%d file=%d", soundPath, dev.Name(), sound.SoundID, sound.FileID)
		}
	} else {
		logger.LogWarning("No playback device available; idling")
	}

	waitForInterrupt(ctx)

	logger.LogInfo("Shutting down audio device manager")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return mgr.Shutdown(shutdownCtx)
}

// applyDBOverrides reads the sqlite-backed Config table and, for every key
// it holds, overwrites the matching field on cfg. It is how the database
// "supersedes" settings.json once InitDatabase has run: db.seedDefaults
// fills the table from its own built-in defaults on first launch (it does
// not read settings.json), and from then on the
// database is the value a running process actually honors.
func applyDBOverrides(cfg *config.Config) error {
	values, err := db.GetConfigValues()
	if err != nil {
		return fmt.Errorf("reading database-backed configuration: %w", err)
	}
	if v, ok := values["preferred_device_name"]; ok {
		cfg.PreferredDeviceName = v
	}
	if v, ok := values["update_interval_millis"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.UpdateIntervalMillis = n
		}
	}
	if v, ok := values["device_scan_interval_millis"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DeviceScanIntervalMillis = n
		}
	}
	if v, ok := values["event_pump_interval_millis"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EventPumpIntervalMillis = n
		}
	}
	if v, ok := values["last_listener_volume"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 128 {
			cfg.LastListenerVolume = n
		}
	}
	return nil
}

func waitForInterrupt(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
}

// eventLogger logs every finished-sound and device-management notification
// it receives; it carries no state of its own to finalize.
type eventLogger struct{}

func (eventLogger) OnSoundFinished(evt *alcore.FinishedEvent) {
	logger.LogInfoF("sound %d finished: %s", evt.SoundID, evt.FinishedType)
}

func (eventLogger) OnDeviceManagement(kind alcore.DeviceMgmtKind, deviceID int32, name string) {
	logger.LogInfoF("device management event: kind=%s device=%d name=%q", kind, deviceID, name)
}
