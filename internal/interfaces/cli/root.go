// Package cli implements the stratlens command line interface over the
// SDK client.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/stratlens/stratlens/pkg/client"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Options holds the global flags shared by every subcommand.
type Options struct {
	ServerAddr string
	Output     string
	Timeout    time.Duration
}

// Client builds the SDK client for the configured server.
func (o *Options) Client() (*client.Client, error) {
	return client.NewClient(o.ServerAddr)
}

// NewRootCommand builds the root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:     "stratlens",
		Short:   "StratLens CLI for strategic market analysis results",
		Long:    "Command line access to the StratLens results pipeline:\ntrigger generation runs, follow their progress, and fetch the\nper-segment analysis bundles.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),

		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.ServerAddr, "server", "http://localhost:8080", "API server address")
	pf.StringVarP(&opts.Output, "output", "o", "text", "output format (text, json)")
	pf.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "request timeout")

	cmd.AddCommand(
		newGenerateCmd(opts),
		newStatusCmd(opts),
		newResultsCmd(opts),
		newClearCmd(opts),
	)
	return cmd
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
