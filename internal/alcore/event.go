package alcore

// EventKind identifies what a worker-generated Event reports.
type EventKind int

const (
	EvtSoundFinished EventKind = iota
	EvtDeviceAdded
	EvtDeviceRemoved
	EvtDeviceChanged
	EvtPlayError
)

// Event is posted by the worker goroutine and drained by the caller thread's
// periodic event-pump tick. Like Command, it is a plain value type.
type Event struct {
	Kind     EventKind
	DeviceID int32

	SoundID    int32
	FileID     int32
	DeviceName string
	IsDefault  bool
	Err        string
}

// FinishedType classifies why an active sound stopped being active.
type FinishedType int

const (
	FinishedCompleted FinishedType = iota
	FinishedAborted
	FinishedListenerRemoved
	FinishedFileNotFound
)

func (t FinishedType) String() string {
	switch t {
	case FinishedCompleted:
		return "COMPLETED"
	case FinishedAborted:
		return "ABORTED"
	case FinishedListenerRemoved:
		return "LISTENER_REMOVED"
	case FinishedFileNotFound:
		return "FILE_NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// FinishedEvent is the value handed to Listener.OnSoundFinished. The same
// instance is reused across every listener notified within one dispatch
// episode (see PlaybackDevice.dispatchFinished); a listener that needs the
// data after its callback returns must copy it out.
type FinishedEvent struct {
	TimeUsec     int64
	Device       *PlaybackDevice
	SoundID      int32
	FinishedType FinishedType
}

func (e *FinishedEvent) reinit(timeUsec int64, dev *PlaybackDevice, kind FinishedType, soundID int32) {
	e.TimeUsec = timeUsec
	e.Device = dev
	e.FinishedType = kind
	e.SoundID = soundID
}
