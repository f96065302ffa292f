// Command deckctl drives the deck rebuild pipeline from a terminal: the
// local subcommands work on files, the job subcommands go through the
// configured database and dispatcher.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
)

type rootOptions struct {
	verbose bool
	log     *logger.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{log: logger.Nop()}
	root := &cobra.Command{
		Use:           "deckctl",
		Short:         "Rebuild PowerPoint decks onto a template",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !opts.verbose {
				return nil
			}
			l, err := logger.New("development")
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			opts.log = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			opts.log.Sync()
		},
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		newExtractCmd(opts),
		newPlaceholdersCmd(opts),
		newPlanCmd(opts),
		newValidateCmd(opts),
		newApplyCmd(opts),
		newJobCmd(opts),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "deckctl: %v\n", err)
		os.Exit(1)
	}
}
