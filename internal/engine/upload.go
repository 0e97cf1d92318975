package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/gaby/sparse-stream/internal/errs"
	"github.com/gaby/sparse-stream/internal/frame"
	"github.com/gaby/sparse-stream/internal/imageio"
	"github.com/gaby/sparse-stream/internal/ledger"
)

// UploadOptions configures a single upload invocation.
type UploadOptions struct {
	TransferID string
	Recorder   ledger.Recorder
}

// Upload parses a sparse stream from source and applies it to adapter:
// the first frame must be meta (else errs.ErrMissingMeta), its
// virtual-size must not exceed adapter.Size() (else
// errs.ErrDestinationTooSmall, checked before any zero/write call),
// then each subsequent zero/data frame is dispatched until stop, after
// which adapter.Flush is called exactly once. Adapter is closed on
// every exit path.
func Upload(ctx context.Context, source io.Reader, adapter imageio.Adapter, opts UploadOptions) (err error) {
	rec := opts.Recorder
	if rec == nil {
		rec = ledger.Noop{}
	}
	rec.Started(opts.TransferID, ledger.DirectionUpload, "")

	defer func() {
		closeErr := adapter.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			rec.Failed(opts.TransferID, err)
		}
	}()

	meta, err := readMeta(source)
	if err != nil {
		return err
	}

	destSize, err := adapter.Size(ctx)
	if err != nil {
		return err
	}
	if meta.VirtualSize > destSize {
		return fmt.Errorf("%w: stream virtual-size %d exceeds destination size %d", errs.ErrDestinationTooSmall, meta.VirtualSize, destSize)
	}

	for {
		kind, start, length, err := frame.ReadHeader(source)
		if err != nil {
			return err
		}
		switch kind {
		case frame.Zero:
			if err := adapter.Zero(ctx, start, length); err != nil {
				return err
			}
		case frame.Data:
			if err := adapter.ReadFrom(ctx, io.LimitReader(source, int64(length)), start, length); err != nil {
				return err
			}
			if err := frame.ExpectCRLF(source); err != nil {
				return err
			}
		case frame.Stop:
			if err := adapter.Flush(ctx); err != nil {
				return err
			}
			rec.Completed(opts.TransferID, meta.VirtualSize, meta.DataSize)
			return nil
		default:
			return fmt.Errorf("%w: %q after meta", errs.ErrUnexpectedFrame, kind)
		}
	}
}

func readMeta(source io.Reader) (frame.Meta, error) {
	kind, _, length, err := frame.ReadHeader(source)
	if err != nil {
		return frame.Meta{}, err
	}
	if kind != frame.Meta {
		return frame.Meta{}, fmt.Errorf("%w: first frame was %q", errs.ErrMissingMeta, kind)
	}
	body, err := frame.ReadExact(source, int(length))
	if err != nil {
		return frame.Meta{}, err
	}
	if err := frame.ExpectCRLF(source); err != nil {
		return frame.Meta{}, err
	}
	return frame.DecodeMeta(body)
}
