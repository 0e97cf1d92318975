// Package errs defines the sentinel error kinds shared across the
// sparse-stream core. Callers use errors.Is against these values;
// concrete errors wrap one of them with fmt.Errorf("%w: ...", ...).
package errs

import "errors"

var (
	// ErrMalformedFrame means a frame header's shape was wrong, its hex
	// fields were not valid hex, or its trailing CRLF was missing.
	ErrMalformedFrame = errors.New("sparse-stream: malformed frame")

	// ErrMissingMeta means the first frame of an upload stream was not meta.
	ErrMissingMeta = errors.New("sparse-stream: missing meta frame")

	// ErrUnexpectedFrame means a frame kind other than data/zero/stop
	// appeared after meta.
	ErrUnexpectedFrame = errors.New("sparse-stream: unexpected frame kind")

	// ErrInvalidExtents means the adapter returned an overlapping or
	// non-contiguous extent sequence.
	ErrInvalidExtents = errors.New("sparse-stream: invalid extents")

	// ErrDestinationTooSmall means meta.virtual-size exceeds the
	// destination adapter's reported size.
	ErrDestinationTooSmall = errors.New("sparse-stream: destination too small")

	// ErrTransport wraps an underlying transport (HTTP/NBD) failure.
	ErrTransport = errors.New("sparse-stream: transport error")

	// ErrShortIO means a source or sink ended before a frame was fully read or written.
	ErrShortIO = errors.New("sparse-stream: short read or write")

	// ErrUnsupportedContext means incremental enumeration was requested
	// on a transfer that does not support it.
	ErrUnsupportedContext = errors.New("sparse-stream: unsupported enumeration context")
)
