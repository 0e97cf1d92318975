// Package engine implements the download and upload streaming state
// machines: drive an imageio.Adapter's extent enumeration and
// byte-range I/O primitives to encode or decode a sparse-stream wire
// sequence without ever materializing the full image in memory.
//
// Both engines are single-threaded and synchronous: every adapter call
// and every sink/source read or write is a potential blocking point,
// and there are no cooperative yield points inside them. The adapter
// is released exactly once on every exit path via a deferred close.
package engine

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/gaby/sparse-stream/internal/errs"
	"github.com/gaby/sparse-stream/internal/extent"
	"github.com/gaby/sparse-stream/internal/frame"
	"github.com/gaby/sparse-stream/internal/imageio"
	"github.com/gaby/sparse-stream/internal/ledger"
)

// DownloadOptions configures a single download invocation.
type DownloadOptions struct {
	Incremental bool
	// TransferID, when non-empty, is attached to ledger rows recorded
	// for this invocation. Recorder may be nil to disable the ledger.
	TransferID string
	Recorder   ledger.Recorder
	// Now returns the current local time for the meta date field.
	// Defaults to time.Now when nil.
	Now func() time.Time
}

// Download drives adapter's extent enumeration and emits a
// self-delimited sparse stream to sink: one meta frame, then a
// zero/data frame per remaining extent in enumeration order, then one
// stop frame. Adapter is closed on every exit path.
func Download(ctx context.Context, sink io.Writer, adapter imageio.Adapter, opts DownloadOptions) (err error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rec := opts.Recorder
	if rec == nil {
		rec = ledger.Noop{}
	}
	rec.Started(opts.TransferID, ledger.DirectionDownload, "")

	defer func() {
		closeErr := adapter.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			rec.Failed(opts.TransferID, err)
		}
	}()

	enumCtx := imageio.ContextZero
	if opts.Incremental {
		enumCtx = imageio.ContextDirty
	}

	extents, err := adapter.Extents(ctx, enumCtx)
	if err != nil {
		return err
	}
	extents = dropEmpty(extents)
	sort.SliceStable(extents, func(i, j int) bool { return extents[i].Start < extents[j].Start })

	var virtualSize uint64
	if len(extents) > 0 {
		last := extents[len(extents)-1]
		virtualSize = last.End()
	}
	if !extent.Coverage(extents, virtualSize) {
		return fmt.Errorf("%w: adapter extents are not sorted/contiguous", errs.ErrInvalidExtents)
	}

	dataSize := extent.SumLength(extents, func(e extent.Extent) bool {
		return e.IsData() && (!opts.Incremental || e.IsDirty())
	})

	meta := frame.Meta{
		VirtualSize: virtualSize,
		DataSize:    dataSize,
		Date:        now().Format("2006-01-02T15:04:05.000000"),
		Incremental: opts.Incremental,
	}
	if err := emitMeta(sink, meta); err != nil {
		return err
	}

	if opts.Incremental {
		extents = filterDirty(extents)
	}

	for _, e := range extents {
		if e.IsZero() {
			if err := frame.WriteHeader(sink, frame.Zero, e.Start, e.Length); err != nil {
				return err
			}
			continue
		}
		if err := frame.WriteHeader(sink, frame.Data, e.Start, e.Length); err != nil {
			return err
		}
		if err := adapter.WriteTo(ctx, sink, e.Start, e.Length); err != nil {
			return err
		}
		if err := frame.WriteCRLF(sink); err != nil {
			return err
		}
	}

	if err := frame.WriteHeader(sink, frame.Stop, 0, 0); err != nil {
		return err
	}

	rec.Completed(opts.TransferID, meta.VirtualSize, meta.DataSize)
	return nil
}

func emitMeta(sink io.Writer, meta frame.Meta) error {
	body, err := frame.EncodeMeta(meta)
	if err != nil {
		return err
	}
	if err := frame.WriteHeader(sink, frame.Meta, 0, uint64(len(body))); err != nil {
		return err
	}
	if _, err := sink.Write(body); err != nil {
		return fmt.Errorf("%w: writing meta body: %v", errs.ErrShortIO, err)
	}
	return frame.WriteCRLF(sink)
}

func dropEmpty(extents []extent.Extent) []extent.Extent {
	out := extents[:0]
	for _, e := range extents {
		if e.Length > 0 {
			out = append(out, e)
		}
	}
	return out
}

func filterDirty(extents []extent.Extent) []extent.Extent {
	out := extents[:0]
	for _, e := range extents {
		if e.IsDirty() {
			out = append(out, e)
		}
	}
	return out
}
