// The stratlens binary is the command line interface to the results API.
package main

import (
	"fmt"
	"os"

	"github.com/stratlens/stratlens/internal/interfaces/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stratlens: %v\n", err)
		os.Exit(1)
	}
}
