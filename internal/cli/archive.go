package cli

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dustin/go-humanize"
)

// gzipMagic is the two-byte gzip header, used to auto-detect an
// archived stream on upload's stdin without requiring a separate
// unpack step.
var gzipMagic = [2]byte{0x1f, 0x8b}

// maybeGunzip peeks the first two bytes of r; if they are the gzip
// magic, it returns a reader that transparently decompresses, else it
// returns r unchanged (with the peeked bytes restored).
func maybeGunzip(r io.Reader) (io.Reader, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 64*1024)
	}
	peek, err := br.Peek(2)
	if err != nil {
		if err == io.EOF {
			return br, nil
		}
		return nil, fmt.Errorf("peeking input: %w", err)
	}
	if peek[0] == gzipMagic[0] && peek[1] == gzipMagic[1] {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return gz, nil
	}
	return br, nil
}

// runArchive reads a sparse stream from stdin and writes a gzip-packed
// copy to OUTFILE via an io.Copy through a gzip.Writer into a freshly
// created file.
func runArchive(args []string, stdin io.Reader) int {
	fs, verbose := newFlagSet("archive")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: sparse-stream archive [-v] OUTFILE")
		return ExitUsage
	}
	configureLogging(*verbose)
	outPath := fs.Arg(0)

	out, err := os.Create(outPath)
	if err != nil {
		log.Printf("archive: creating %s: %v", outPath, err)
		return ExitError
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	n, err := io.Copy(gz, stdin)
	closeErr := gz.Close()
	if err != nil {
		log.Printf("archive: copying stream: %v", err)
		return ExitError
	}
	if closeErr != nil {
		log.Printf("archive: closing gzip writer: %v", closeErr)
		return ExitError
	}
	log.Printf("archive: wrote %s compressed-from=%s", outPath, humanize.Bytes(uint64(n)))
	return ExitOK
}
