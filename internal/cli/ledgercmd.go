package cli

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/gaby/sparse-stream/internal/ledger"
)

// runLedger prints the recorded transfer history as a table, reading
// the same sqlite database the download/upload subcommands write to
// when SPARSE_STREAM_LEDGER is set.
func runLedger(args []string, stdout io.Writer) int {
	fs, verbose := newFlagSet("ledger")
	dbPath := fs.String("db", os.Getenv("SPARSE_STREAM_LEDGER"), "path to the ledger database")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "usage: sparse-stream ledger [--db PATH]")
		return ExitUsage
	}
	configureLogging(*verbose)
	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "no ledger configured: set --db or SPARSE_STREAM_LEDGER")
		return ExitUsage
	}

	db, err := ledger.Open(*dbPath)
	if err != nil {
		log.Printf("ledger: open %s: %v", *dbPath, err)
		return ExitError
	}
	defer db.Close()

	rows, err := db.List()
	if err != nil {
		log.Printf("ledger: list: %v", err)
		return ExitError
	}

	fmt.Fprintf(stdout, "%-36s %-9s %-8s %-10s %-10s %s\n", "id", "direction", "state", "virtual", "data", "url")
	for _, r := range rows {
		fmt.Fprintf(stdout, "%-36s %-9s %-8s %-10s %-10s %s\n",
			r.ID, r.Direction, r.State,
			humanize.Bytes(r.VirtualSize), humanize.Bytes(r.DataSize), r.URL)
	}
	return ExitOK
}
