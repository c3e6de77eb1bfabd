// ABOUTME: Package transport keeps one reconnecting WebSocket to the progress stream
// ABOUTME: Heartbeats, bounded reconnect and listener fan-out live here

// Package transport maintains the duplex connection to the research backend's
// progress endpoint and fans decoded events out to registered listeners.
//
// # Lifecycle
//
// A Client is created with NewClient and opened with Connect. While the
// socket is open a heartbeat goroutine writes the literal text frame "ping"
// every HeartbeatInterval. When the socket closes for any reason other than
// Disconnect, the client schedules a reconnect after ReconnectDelay. The
// attempt counter resets on every successful connect; once
// MaxReconnectAttempts consecutive attempts have failed the client emits a
// GaveUp state change and stops trying.
//
// Disconnect is terminal: it closes the socket, stops the heartbeat, cancels
// any pending reconnect and clears listeners. Connect afterwards returns
// ErrClosed.
//
// # Listeners
//
// Listeners are held in a Registry that outlives individual sockets, so
// registrations survive reconnects. Registration is keyed by listener
// identity and idempotent. Delivery is synchronous on the read goroutine, in
// registration order. A panicking listener is recovered and logged and the
// remaining listeners still receive the event.
//
// Frames that fail to decode are logged and dropped. Heartbeat frames (status
// "ping" or "pong") are consumed here and never reach listeners.
//
// # Time
//
// Heartbeat and reconnect timers come from a clockwork.Clock so tests can
// drive them with a fake clock.
package transport
