// Package cli implements the sparse-stream subcommand shell: flag
// parsing and dispatch with stdlib flag and stdlib log, key=value log
// lines, no CLI framework.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/gaby/sparse-stream/internal/engine"
	"github.com/gaby/sparse-stream/internal/errs"
	"github.com/gaby/sparse-stream/internal/imageio/httptransport"
	"github.com/gaby/sparse-stream/internal/ledger"
)

// Exit codes returned by Run.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// Run parses args (excluding the program name) and dispatches to the
// matching subcommand, returning the process exit code. stdin/stdout
// are passed explicitly so tests can substitute buffers.
func Run(args []string, stdin io.Reader, stdout io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: sparse-stream <download|upload|archive|ledger> ...")
		return ExitUsage
	}

	switch args[0] {
	case "download":
		return runDownload(args[1:], stdout)
	case "upload":
		return runUpload(args[1:], stdin)
	case "archive":
		return runArchive(args[1:], stdin)
	case "ledger":
		return runLedger(args[1:], stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
		return ExitUsage
	}
}

func newFlagSet(name string) (*flag.FlagSet, *bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	verbose := fs.Bool("v", false, "raise log verbosity")
	fs.BoolVar(verbose, "verbose", false, "raise log verbosity")
	return fs, verbose
}

func configureLogging(verbose bool) {
	log.SetOutput(os.Stderr)
	if verbose {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		log.SetFlags(log.LstdFlags)
	}
}

func openLedger() ledger.Recorder {
	path := os.Getenv("SPARSE_STREAM_LEDGER")
	if path == "" {
		return ledger.Noop{}
	}
	db, err := ledger.Open(path)
	if err != nil {
		log.Printf("ledger: open failed path=%s err=%v (continuing without a ledger)", path, err)
		return ledger.Noop{}
	}
	return db
}

// exitCodeFor maps an engine error to the process exit code: nil is 0,
// any other error is 1. CLI misuse (exit code 2) is reported by the
// subcommand functions before an engine runs, not here.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var kinds = []error{
		errs.ErrMalformedFrame, errs.ErrMissingMeta, errs.ErrUnexpectedFrame,
		errs.ErrInvalidExtents, errs.ErrDestinationTooSmall, errs.ErrTransport,
		errs.ErrShortIO, errs.ErrUnsupportedContext,
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			log.Printf("error kind=%v detail=%v", k, err)
			return ExitError
		}
	}
	log.Printf("error: %v", err)
	return ExitError
}

func newTransferID() string { return uuid.NewString() }

func runDownload(args []string, stdout io.Writer) int {
	fs, verbose := newFlagSet("download")
	incremental := fs.Bool("incremental", false, "enumerate only dirty extents")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: sparse-stream download [--incremental] [-v] URL")
		return ExitUsage
	}
	configureLogging(*verbose)
	url := fs.Arg(0)

	ctx := context.Background()
	adapter, err := httptransport.Open(ctx, url)
	if err != nil {
		log.Printf("open adapter: %v", err)
		return ExitError
	}

	transferID := newTransferID()
	log.Printf("download start id=%s url=%s incremental=%v", transferID, url, *incremental)
	err = engine.Download(ctx, stdout, adapter, engine.DownloadOptions{
		Incremental: *incremental,
		TransferID:  transferID,
		Recorder:    openLedger(),
	})
	if err != nil {
		return exitCodeFor(err)
	}
	log.Printf("download done id=%s", transferID)
	return ExitOK
}

func runUpload(args []string, stdin io.Reader) int {
	fs, verbose := newFlagSet("upload")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: sparse-stream upload [-v] URL")
		return ExitUsage
	}
	configureLogging(*verbose)
	url := fs.Arg(0)

	ctx := context.Background()
	adapter, err := httptransport.Open(ctx, url)
	if err != nil {
		log.Printf("open adapter: %v", err)
		return ExitError
	}

	source, err := maybeGunzip(stdin)
	if err != nil {
		_ = adapter.Close()
		log.Printf("open input: %v", err)
		return ExitError
	}

	transferID := newTransferID()
	log.Printf("upload start id=%s url=%s", transferID, url)
	err = engine.Upload(ctx, source, adapter, engine.UploadOptions{
		TransferID: transferID,
		Recorder:   openLedger(),
	})
	if err != nil {
		return exitCodeFor(err)
	}
	log.Printf("upload done id=%s", transferID)
	return ExitOK
}
