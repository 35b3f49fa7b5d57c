package domain

type ConnectionState string

const (
	ConnectionState_Connecting   ConnectionState = "connecting"
	ConnectionState_Connected    ConnectionState = "connected"
	ConnectionState_Reconnecting ConnectionState = "reconnecting"
	ConnectionState_Closed       ConnectionState = "closed"
)

// CombineStates folds the states of several subscriptions into one consumer-facing state.
// Any reconnecting stream wins, then connecting, then closed; connected needs all.
func CombineStates(states ...ConnectionState) ConnectionState {
	if len(states) == 0 {
		return ConnectionState_Closed
	}

	var connecting, closed bool
	for _, s := range states {
		switch s {
		case ConnectionState_Reconnecting:
			return ConnectionState_Reconnecting
		case ConnectionState_Connecting:
			connecting = true
		case ConnectionState_Closed, "":
			closed = true
		}
	}

	if connecting {
		return ConnectionState_Connecting
	}
	if closed {
		return ConnectionState_Closed
	}
	return ConnectionState_Connected
}
