// Package imageio declares the capability set the download and
// upload engines consume from a remote imageio-fronted storage
// endpoint. Concrete transports live in subpackages (httptransport,
// memory); engines depend only on the Adapter interface, keeping
// consumer and transport cleanly separated.
package imageio

import (
	"context"
	"io"

	"github.com/gaby/sparse-stream/internal/extent"
)

// Context selects which extent enumeration a caller wants.
type Context string

const (
	// ContextZero enumerates the full address space as data/zero
	// extents with no dirty information.
	ContextZero Context = "zero"
	// ContextDirty enumerates the full address space with each extent
	// additionally carrying whether it changed since the prior
	// checkpoint. Only valid when the adapter was opened for an
	// incremental transfer.
	ContextDirty Context = "dirty"
)

// Adapter is the capability set consumed by the download and upload
// engines. Implementations own the remote connection for the lifetime
// of one download or upload; Close releases it deterministically.
type Adapter interface {
	// Size returns the destination's virtual size in bytes.
	Size(ctx context.Context) (uint64, error)

	// Extents returns the full extent enumeration for the given
	// context, sorted by Start, contiguous, covering [0, size). It
	// returns errs.ErrUnsupportedContext if ContextDirty is requested
	// on a transfer that does not support incremental enumeration.
	Extents(ctx context.Context, c Context) ([]extent.Extent, error)

	// WriteTo streams exactly length bytes from offset to sink,
	// without buffering the whole range in memory.
	WriteTo(ctx context.Context, sink io.Writer, offset, length uint64) error

	// ReadFrom consumes exactly length bytes from source and writes
	// them to the remote at offset, without buffering the whole range
	// in memory.
	ReadFrom(ctx context.Context, source io.Reader, offset, length uint64) error

	// Zero punches or records a zero range at [offset, offset+length).
	Zero(ctx context.Context, offset, length uint64) error

	// Flush durably commits pending writes.
	Flush(ctx context.Context) error

	// Close releases the transport. Safe to call exactly once.
	Close() error
}

// ChunkSize is the default streaming chunk used by WriteTo/ReadFrom
// implementations, per spec's 1-8 MiB guidance.
const ChunkSize = 4 * 1024 * 1024
