// dnnmodeler - compose neural network topologies from a remote block catalog.
//
// dnnmodeler edits a model graph of catalog blocks between fixed input and
// output layers, annotates it with shape compatibility from a remote service,
// and submits it to a model builder once every connection checks out.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/dnnmodeler-go/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
