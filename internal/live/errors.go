package live

import "errors"

// ErrNotConnected is returned when publishing while the session has no
// live connection. Best-effort callers drop the event; the next sync
// round reconciles the data anyway.
var ErrNotConnected = errors.New("relay session not connected")
