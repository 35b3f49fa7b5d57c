package domain

// Subscription is the owner's handle to one live stream subscription.
type Subscription struct {
	Topic       string
	Unsubscribe func()
	State       func() ConnectionState
}
