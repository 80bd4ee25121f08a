package updater

// ConnectionState is the updater's view of the session.
type ConnectionState int32

const (
	// StateDisconnected means no connection is established.
	StateDisconnected ConnectionState = iota

	// StateConnecting means the session is dialing.
	StateConnecting

	// StateConnected means a connection is up but Bootstrap has not
	// completed.
	StateConnected

	// StateSubscribed means Bootstrap completed and the cache is live.
	StateSubscribed
)

// String returns the state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateSubscribed:
		return "SUBSCRIBED"
	default:
		return "UNKNOWN"
	}
}

// DeviceState is the Klippy host state reported by Moonraker.
type DeviceState int32

const (
	DeviceStateUnknown DeviceState = iota
	DeviceStateReady
	DeviceStateShutdown
	DeviceStateDisconnected
)

// String returns the state name as Moonraker spells it.
func (s DeviceState) String() string {
	switch s {
	case DeviceStateReady:
		return "ready"
	case DeviceStateShutdown:
		return "shutdown"
	case DeviceStateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// DeviceStates lists every device state in order.
func DeviceStates() []DeviceState {
	return []DeviceState{DeviceStateUnknown, DeviceStateReady, DeviceStateShutdown, DeviceStateDisconnected}
}

// Observer receives device state changes. Calls are made on the consumer
// goroutine and must not block.
type Observer interface {
	DeviceStateChanged(state DeviceState)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(state DeviceState)

// DeviceStateChanged calls f(state).
func (f ObserverFunc) DeviceStateChanged(state DeviceState) {
	f(state)
}
