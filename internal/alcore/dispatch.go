package alcore

import "time"

func (pd *PlaybackDevice) popActiveLocked(soundID int32) (int64, bool) {
	for i, s := range pd.active {
		if s.soundID == soundID {
			last := len(pd.active) - 1
			startAt := s.startAt
			pd.active[i] = pd.active[last]
			pd.active = pd.active[:last]
			return startAt, true
		}
	}
	return 0, false
}

// dispatchFinished removes soundID from local tracking (it is no longer
// active by any definition once this runs) and notifies every listener that
// was registered before the sound started, sharing one FinishedEvent
// instance across all of them.
func (pd *PlaybackDevice) dispatchFinished(m *Manager, soundID int32, kind FinishedType) {
	pd.mu.Lock()
	startAt, ok := pd.popActiveLocked(soundID)
	pd.mu.Unlock()
	if !ok {
		return
	}

	m.mu.Lock()
	listeners := append([]*listenerRegistration(nil), m.listeners...)
	m.mu.Unlock()

	nowUsec := time.Now().UnixMicro()
	var shared FinishedEvent
	for _, lr := range listeners {
		// Exact visibility rule: a listener only sees sounds that started
		// at or after it was registered.
		if lr.addedAt > startAt {
			continue
		}
		if kind == FinishedAborted || kind == FinishedListenerRemoved {
			if lr.alreadyFinalized(soundID) {
				continue
			}
			lr.markFinalized(soundID)
		}
		shared.reinit(nowUsec, pd, kind, soundID)
		lr.listener.OnSoundFinished(&shared)
	}
}

// finishDeviceSounds synthesizes an ABORTED finished event for every sound
// still active on this device, used when the device itself is torn down
// (removed or recreated by a hot-plug scan).
func (pd *PlaybackDevice) finishDeviceSounds(m *Manager) {
	m.beginFinalization()
	defer m.endFinalization()
	for {
		pd.mu.Lock()
		if len(pd.active) == 0 {
			pd.mu.Unlock()
			return
		}
		soundID := pd.active[0].soundID
		pd.mu.Unlock()
		pd.dispatchFinished(m, soundID, FinishedAborted)
	}
}

// finalizeListener synthesizes a LISTENER_REMOVED event to lr alone, for
// every sound on this device lr can see, without removing those sounds from
// local tracking: per the event's own contract the sound may still be
// playing.
func (pd *PlaybackDevice) finalizeListener(m *Manager, lr *listenerRegistration) {
	pd.mu.Lock()
	sounds := append([]soundTrack(nil), pd.active...)
	pd.mu.Unlock()

	nowUsec := time.Now().UnixMicro()
	var shared FinishedEvent
	for _, s := range sounds {
		if lr.addedAt > s.startAt {
			continue
		}
		if lr.alreadyFinalized(s.soundID) {
			continue
		}
		lr.markFinalized(s.soundID)
		shared.reinit(nowUsec, pd, FinishedListenerRemoved, s.soundID)
		lr.listener.OnSoundFinished(&shared)
	}
}
