package alcore

import (
	"context"
	"testing"
	"time"
)

func fastOptions() []Option {
	return []Option{
		WithUpdateInterval(3 * time.Millisecond),
		WithDeviceScanInterval(5 * time.Millisecond),
		WithEventPumpInterval(3 * time.Millisecond),
	}
}

func mustNewManager(t *testing.T, lib NativeLibrary) *Manager {
	t.Helper()
	mgr, err := New(lib, fastOptions()...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
	})
	return mgr
}

func waitFinished(t *testing.T, ch chan FinishedEvent, timeout time.Duration) FinishedEvent {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for a finished event")
		return FinishedEvent{}
	}
}

func expectNoFinishedWithin(t *testing.T, ch chan FinishedEvent, d time.Duration) {
	t.Helper()
	select {
	case e := <-ch:
		t.Fatalf("unexpected finished event: soundID=%d kind=%s", e.SoundID, e.FinishedType)
	case <-time.After(d):
	}
}

func waitMgmt(t *testing.T, ch chan mgmtRecord, timeout time.Duration) mgmtRecord {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for a device-management event")
		return mgmtRecord{}
	}
}

// Scenario 1: simple play-complete.
func TestSimplePlayComplete(t *testing.T) {
	lib := newMockLibrary("dev0")
	lib.setAutoFinish("dev0", "a.ogg", 10*time.Millisecond)
	mgr := mustNewManager(t, lib)

	l := newRecordingListener()
	mgr.AddListener(l, false)

	dev := mgr.Devices()[0]
	sd := dev.PlaySoundFile("a.ogg", 1.0, false, true, 0, 0, 0)
	if sd.SoundID != 0 || sd.FileID != 0 {
		t.Fatalf("PlaySoundFile = %+v, want {0 0}", sd)
	}

	evt := waitFinished(t, l.finishedCh, time.Second)
	if evt.SoundID != 0 || evt.FinishedType != FinishedCompleted {
		t.Fatalf("finished event = %+v, want soundID=0 kind=COMPLETED", evt)
	}
}

// Scenario 2: replaying an already-loaded file id reuses the buffer cache.
func TestReplayViaFileID(t *testing.T) {
	lib := newMockLibrary("dev0")
	lib.setAutoFinish("dev0", "a.ogg", 10*time.Millisecond)
	mgr := mustNewManager(t, lib)

	l := newRecordingListener()
	mgr.AddListener(l, false)

	dev := mgr.Devices()[0]
	sd := dev.PlaySoundFile("a.ogg", 1.0, false, true, 0, 0, 0)
	if sd.SoundID != 0 || sd.FileID != 0 {
		t.Fatalf("first play = %+v, want {0 0}", sd)
	}
	waitFinished(t, l.finishedCh, time.Second)

	soundID := dev.PlaySoundFileID(0, 1.0, false, true, 0, 0, 0)
	if soundID != 1 {
		t.Fatalf("PlaySoundFileID = %d, want 1", soundID)
	}

	dev.mu.Lock()
	nFiles := len(dev.pathToFile)
	dev.mu.Unlock()
	if nFiles != 1 {
		t.Fatalf("pathToFile has %d entries, want 1", nFiles)
	}

	md := lib.deviceByName("dev0")
	md.mu.Lock()
	nCreate := md.nCreateFile
	nBuffers := len(md.buffers)
	md.mu.Unlock()
	if nCreate != 1 {
		t.Fatalf("CreateBufferFromFile called %d times, want 1", nCreate)
	}
	if nBuffers != 1 {
		t.Fatalf("device has %d buffers, want 1", nBuffers)
	}
}

// Scenario 3: stopping a sound suppresses its finished event entirely.
func TestStopSuppressesFinishedEvent(t *testing.T) {
	lib := newMockLibrary("dev0")
	mgr := mustNewManager(t, lib)

	l := newRecordingListener()
	mgr.AddListener(l, false)

	dev := mgr.Devices()[0]
	sd := dev.PlaySoundFile("loop.ogg", 1.0, true, true, 0, 0, 0)
	if sd.SoundID != 0 {
		t.Fatalf("PlaySoundFile soundID = %d, want 0", sd.SoundID)
	}

	time.Sleep(20 * time.Millisecond)
	if !dev.StopSound(sd.SoundID) {
		t.Fatalf("StopSound(%d) = false, want true", sd.SoundID)
	}

	expectNoFinishedWithin(t, l.finishedCh, 80*time.Millisecond)

	dev.mu.Lock()
	nActive := len(dev.active)
	dev.mu.Unlock()
	if nActive != 0 {
		t.Fatalf("active sound list has %d entries after stop, want 0", nActive)
	}
}

// Scenario 4: device-pause interactions, including the
// started-while-device-paused flag semantics.
func TestDevicePauseInteractions(t *testing.T) {
	lib := newMockLibrary("dev0")
	mgr := mustNewManager(t, lib)
	dev := mgr.Devices()[0]

	sd0 := dev.PlaySoundFile("a.ogg", 1.0, true, true, 0, 0, 0)
	if sd0.SoundID != 0 {
		t.Fatalf("sd0.SoundID = %d, want 0", sd0.SoundID)
	}
	time.Sleep(10 * time.Millisecond) // let the play command land before pausing

	if !dev.PauseDevice() {
		t.Fatal("PauseDevice() = false")
	}
	time.Sleep(10 * time.Millisecond)

	sd1 := dev.PlaySoundFile("b.ogg", 1.0, true, true, 1, 1, 1)
	if sd1.SoundID != 1 || sd1.FileID != 1 {
		t.Fatalf("sd1 = %+v, want {1 1}", sd1)
	}
	time.Sleep(10 * time.Millisecond)

	if !dev.ResumeDevice() {
		t.Fatal("ResumeDevice() = false")
	}
	time.Sleep(10 * time.Millisecond)

	// Sound 0 (started before the pause) should now be audible; sound 1
	// (started while paused) must remain silent until resumed explicitly.
	dev.mu.Lock()
	active := append([]soundTrack(nil), dev.active...)
	dev.mu.Unlock()
	if len(active) != 2 {
		t.Fatalf("active sounds = %d, want 2", len(active))
	}

	if !dev.ResumeSound(sd1.SoundID) {
		t.Fatalf("ResumeSound(%d) = false", sd1.SoundID)
	}
}

// Scenario 5: hot-removing a device with sounds playing synthesizes an
// ABORTED finished event per active sound, followed by a device-removed
// management event.
func TestHotRemoveFinalization(t *testing.T) {
	lib := newMockLibrary("dev0")
	mgr := mustNewManager(t, lib)

	l := newRecordingListener()
	mgr.AddListener(l, false)

	dev := mgr.Devices()[0]
	sd0 := dev.PlaySoundFile("a.ogg", 1.0, true, true, 0, 0, 0)
	sd1 := dev.PlaySoundFile("b.ogg", 1.0, true, true, 0, 0, 0)
	time.Sleep(10 * time.Millisecond)

	lib.setNames(nil, "")

	seen := map[int32]bool{}
	for i := 0; i < 2; i++ {
		evt := waitFinished(t, l.finishedCh, time.Second)
		if evt.FinishedType != FinishedAborted {
			t.Fatalf("finished kind = %s, want ABORTED", evt.FinishedType)
		}
		seen[evt.SoundID] = true
	}
	if !seen[sd0.SoundID] || !seen[sd1.SoundID] {
		t.Fatalf("expected ABORTED for both %d and %d, saw %v", sd0.SoundID, sd1.SoundID, seen)
	}

	mgmt := waitMgmt(t, l.mgmtCh, time.Second)
	if mgmt.kind != DeviceMgmtRemoved {
		t.Fatalf("mgmt kind = %v, want DeviceMgmtRemoved", mgmt.kind)
	}
}

// Scenario 6: a listener only sees sounds started at or after it registered.
func TestLateListenerVisibility(t *testing.T) {
	lib := newMockLibrary("dev0")
	lib.setAutoFinish("dev0", "a.ogg", 5*time.Millisecond)
	lib.setAutoFinish("dev0", "b.ogg", 5*time.Millisecond)
	mgr := mustNewManager(t, lib)
	dev := mgr.Devices()[0]

	sdA := dev.PlaySoundFile("a.ogg", 1.0, false, true, 0, 0, 0)

	l := newRecordingListener()
	mgr.AddListener(l, false)

	// Give A's completion a chance to reach the listener list before B is
	// even played; it must not be delivered regardless of timing, because
	// the listener's added-timestamp is strictly after A's start-timestamp.
	time.Sleep(60 * time.Millisecond)

	sdB := dev.PlaySoundFile("b.ogg", 1.0, false, true, 0, 0, 0)
	evt := waitFinished(t, l.finishedCh, time.Second)
	if evt.SoundID != sdB.SoundID {
		t.Fatalf("finished soundID = %d, want %d (A=%d should have been filtered)", evt.SoundID, sdB.SoundID, sdA.SoundID)
	}

	select {
	case extra := <-l.finishedCh:
		t.Fatalf("unexpected extra finished event: %+v", extra)
	default:
	}
}

// Id monotonicity: sound ids and file ids increase strictly across calls,
// process-wide (i.e. shared by every device off one Manager).
func TestIDMonotonicity(t *testing.T) {
	lib := newMockLibrary("dev0")
	mgr := mustNewManager(t, lib)
	dev := mgr.Devices()[0]

	sdA := dev.PlaySoundFile("a.ogg", 1.0, true, true, 0, 0, 0)
	sdB := dev.PlaySoundFile("b.ogg", 1.0, true, true, 0, 0, 0)
	if sdB.SoundID <= sdA.SoundID {
		t.Fatalf("sound ids not monotonic: A=%d B=%d", sdA.SoundID, sdB.SoundID)
	}
	if sdB.FileID <= sdA.FileID {
		t.Fatalf("file ids not monotonic: A=%d B=%d", sdA.FileID, sdB.FileID)
	}
}

// Finalization de-dup: removing a finalize-enabled listener while two sounds
// are active reports each sound id at most once.
func TestListenerRemovalFinalizationDedup(t *testing.T) {
	lib := newMockLibrary("dev0")
	mgr := mustNewManager(t, lib)
	dev := mgr.Devices()[0]

	l := newRecordingListener()
	handle := mgr.AddListener(l, true)

	dev.PlaySoundFile("a.ogg", 1.0, true, true, 0, 0, 0)
	dev.PlaySoundFile("b.ogg", 1.0, true, true, 0, 0, 0)
	time.Sleep(10 * time.Millisecond)

	mgr.RemoveListener(handle)

	seen := map[int32]int{}
	for i := 0; i < 2; i++ {
		evt := waitFinished(t, l.finishedCh, time.Second)
		if evt.FinishedType != FinishedListenerRemoved {
			t.Fatalf("finished kind = %s, want LISTENER_REMOVED", evt.FinishedType)
		}
		seen[evt.SoundID]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("sound %d reported %d times, want 1", id, n)
		}
	}
	select {
	case extra := <-l.finishedCh:
		t.Fatalf("unexpected extra finalization event: %+v", extra)
	default:
	}
}

// Volume and coordinate clamping happen at the worker before the native
// call is issued.
func TestClampHelpers(t *testing.T) {
	cases := []struct {
		in   float64
		want float32
	}{
		{-1, 0}, {0, 0}, {0.5, 0.5}, {1, 1}, {2, 1},
	}
	for _, c := range cases {
		if got := clampVolume(c.in); got != c.want {
			t.Errorf("clampVolume(%v) = %v, want %v", c.in, got, c.want)
		}
	}

	if got := clampCoord(1e40); got <= 0 {
		t.Errorf("clampCoord(1e40) = %v, want a large positive finite value", got)
	}
	if got := clampCoord(-1e40); got >= 0 {
		t.Errorf("clampCoord(-1e40) = %v, want a large negative finite value", got)
	}
}

// Unknown sound ids at the application boundary are rejected without
// posting a command.
func TestUnknownSoundIDRejectedAtBoundary(t *testing.T) {
	lib := newMockLibrary("dev0")
	mgr := mustNewManager(t, lib)
	dev := mgr.Devices()[0]

	if dev.StopSound(999) {
		t.Fatal("StopSound on unknown id = true, want false")
	}
	if dev.PauseSound(999) {
		t.Fatal("PauseSound on unknown id = true, want false")
	}
	if dev.SetSoundVol(999, 0.5) {
		t.Fatal("SetSoundVol on unknown id = true, want false")
	}
}

// Playing an unpreloaded file id fails closed.
func TestPlayUnknownFileIDFails(t *testing.T) {
	lib := newMockLibrary("dev0")
	mgr := mustNewManager(t, lib)
	dev := mgr.Devices()[0]

	if id := dev.PlaySoundFileID(42, 1.0, false, true, 0, 0, 0); id >= 0 {
		t.Fatalf("PlaySoundFileID(unknown) = %d, want negative", id)
	}
}

// A preferred device name is an opening-order hint: it is opened first (and
// so gets device id 0) even when the backend enumerates it later.
func TestPreferredDeviceNameOrdering(t *testing.T) {
	lib := newMockLibrary("dev0", "dev1", "dev2")
	mgr, err := New(lib, append(fastOptions(), WithPreferredDeviceName("dev2"))...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
	})

	devices := mgr.Devices()
	if len(devices) != 3 {
		t.Fatalf("got %d devices, want 3", len(devices))
	}
	if devices[0].Name() != "dev2" {
		t.Fatalf("devices[0].Name() = %q, want %q", devices[0].Name(), "dev2")
	}
	if devices[0].ID() != 0 {
		t.Fatalf("preferred device id = %d, want 0", devices[0].ID())
	}
}

func TestOrderByPreference(t *testing.T) {
	cases := []struct {
		names     []string
		preferred string
		want      []string
	}{
		{[]string{"a", "b", "c"}, "", []string{"a", "b", "c"}},
		{[]string{"a", "b", "c"}, "a", []string{"a", "b", "c"}},
		{[]string{"a", "b", "c"}, "c", []string{"c", "a", "b"}},
		{[]string{"a", "b", "c"}, "missing", []string{"a", "b", "c"}},
	}
	for _, c := range cases {
		got := orderByPreference(append([]string(nil), c.names...), c.preferred)
		if len(got) != len(c.want) {
			t.Fatalf("orderByPreference(%v, %q) = %v, want %v", c.names, c.preferred, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("orderByPreference(%v, %q) = %v, want %v", c.names, c.preferred, got, c.want)
			}
		}
	}
}

// Play errors (e.g. a file the backend cannot open) surface asynchronously
// as a FILE_NOT_FOUND finished event.
func TestPlayErrorSurfacesAsFileNotFound(t *testing.T) {
	lib := newMockLibrary("dev0")
	mgr := mustNewManager(t, lib)

	md := lib.deviceByName("dev0")
	md.mu.Lock()
	md.failPaths["missing.ogg"] = true
	md.mu.Unlock()

	l := newRecordingListener()
	mgr.AddListener(l, false)

	dev := mgr.Devices()[0]
	sd := dev.PlaySoundFile("missing.ogg", 1.0, false, true, 0, 0, 0)

	evt := waitFinished(t, l.finishedCh, time.Second)
	if evt.SoundID != sd.SoundID || evt.FinishedType != FinishedFileNotFound {
		t.Fatalf("finished event = %+v, want soundID=%d kind=FILE_NOT_FOUND", evt, sd.SoundID)
	}
}
