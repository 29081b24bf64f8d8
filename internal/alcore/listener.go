package alcore

import (
	"sync"

	"github.com/google/uuid"
)

// DeviceMgmtKind identifies which device-management notification a Listener
// is being told about.
type DeviceMgmtKind int

const (
	DeviceMgmtAdded DeviceMgmtKind = iota
	DeviceMgmtRemoved
	DeviceMgmtChanged
)

func (k DeviceMgmtKind) String() string {
	switch k {
	case DeviceMgmtAdded:
		return "ADDED"
	case DeviceMgmtRemoved:
		return "REMOVED"
	case DeviceMgmtChanged:
		return "CHANGED"
	default:
		return "UNKNOWN"
	}
}

// Listener receives finished-sound notifications and device hot-plug
// notifications from a Manager it has registered with.
type Listener interface {
	OnSoundFinished(evt *FinishedEvent)
	OnDeviceManagement(kind DeviceMgmtKind, deviceID int32, name string)
}

// listenerRegistration is the Manager's bookkeeping for one registered
// Listener: when it was added (for the visibility rule), whether it wants
// finalization events on removal, and the de-dup set that keeps a sound
// from being finalized twice to the same listener.
type listenerRegistration struct {
	id       uuid.UUID
	listener Listener
	addedAt  int64
	finalize bool

	mu        sync.Mutex
	extraData map[int32]bool
}

func newListenerRegistration(l Listener, addedAt int64, finalize bool) *listenerRegistration {
	return &listenerRegistration{
		id:        uuid.New(),
		listener:  l,
		addedAt:   addedAt,
		finalize:  finalize,
		extraData: make(map[int32]bool),
	}
}

func (lr *listenerRegistration) alreadyFinalized(soundID int32) bool {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.extraData[soundID]
}

func (lr *listenerRegistration) markFinalized(soundID int32) {
	lr.mu.Lock()
	lr.extraData[soundID] = true
	lr.mu.Unlock()
}

// resetExtraData clears the per-listener de-dup set. It is only safe to call
// once a finalization episode's nesting depth has returned to zero: a
// listener removal can itself trigger further finalization (removing the
// last listener on a device whose sound just got aborted, say), and an
// early reset would let the same sound be re-finalized to the same listener.
func (lr *listenerRegistration) resetExtraData() {
	lr.mu.Lock()
	lr.extraData = make(map[int32]bool)
	lr.mu.Unlock()
}

// ListenerHandle identifies a previously registered Listener so it can be
// removed again.
type ListenerHandle struct {
	reg *listenerRegistration
}
