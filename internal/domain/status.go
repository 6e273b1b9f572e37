package domain

// ConnectionStatus is the lifecycle state of a connector instance.
// ConnError requires a fresh Connect before further calls succeed.
type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connected
	ConnError
)

func (s ConnectionStatus) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connected:
		return "CONNECTED"
	case ConnError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
