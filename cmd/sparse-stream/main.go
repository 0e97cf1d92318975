// Command sparse-stream moves a sparse virtual-machine disk image
// between an imageio-fronted storage endpoint and stdout/stdin, as a
// self-delimited framed stream of data/zero extents.
package main

import (
	"os"

	"github.com/gaby/sparse-stream/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:], os.Stdin, os.Stdout))
}
