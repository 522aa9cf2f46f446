package transport

import "fmt"

// ErrUnsupported is returned by backends unavailable on the current
// platform (e.g. AF_VSOCK outside Linux).
var ErrUnsupported = fmt.Errorf("transport: backend unsupported on this platform")
