package proxy

import "errors"

// Error sentinels for the ClientLeg/ServerLeg state machines, per spec §7.
var (
	// ErrNotConnected is returned by ServerLeg.Send when the downstream
	// connection is not yet established and the pending queue is full.
	ErrNotConnected = errors.New("proxy: downstream server not connected")

	// ErrQueueFull is returned when a message is dropped because the
	// pending-send queue reached max_queue_size (drop-newest-on-full).
	ErrQueueFull = errors.New("proxy: downstream send queue full, message dropped")

	// ErrReconnectExhausted is returned once the downstream connection has
	// failed to reconnect after the configured max attempts.
	ErrReconnectExhausted = errors.New("proxy: downstream reconnect attempts exhausted")

	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("proxy: connection closed")
)
