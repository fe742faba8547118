package exchange

import "github.com/pkg/errors"

var (
	// errReconnectExhausted is surfaced when the bounded reconnect window
	// is used up; REST polling keeps the tick loop alive past this point.
	errReconnectExhausted = errors.New("stream reconnect attempts exhausted")

	errConnClosed = errors.New("stream connection closed")
)
