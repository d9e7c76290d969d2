package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"roundledger/internal/replay"
	"roundledger/internal/store"
	"roundledger/internal/store/ldbstore"
)

func newReplayCmd(a *app) *cobra.Command {
	var memory bool
	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Apply a recorded JSON-lines stream of blocks, forks and rebinds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, "open replay file")
			}
			defer f.Close()
			events, err := replay.Decode(f)
			if err != nil {
				return errors.WithMessage(err, args[0])
			}

			log, err := a.logger()
			if err != nil {
				return err
			}
			defer log.Close()

			var s store.Store
			if memory {
				s, err = ldbstore.OpenMemory()
			} else {
				s, err = a.openStore(log)
			}
			if err != nil {
				return err
			}
			defer s.Close()

			coord, err := a.newCoordinator(s, log)
			if err != nil {
				return err
			}
			if err := coord.Resume(cmd.Context()); err != nil {
				return err
			}
			sum, err := replay.Run(cmd.Context(), coord, events, replay.Options{Progress: os.Stderr, Log: log})
			if sum != nil {
				fmt.Printf("applied %d blocks, %d forks (%d rounds undone), %d rebinds\n",
					sum.Blocks, sum.Forks, sum.RoundsUndone, sum.Rebinds)
			}
			if err != nil {
				return err
			}
			digest, err := coord.StateDigest(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("state digest: %s\n", digest)
			return nil
		},
	}
	cmd.Flags().BoolVar(&memory, "memory", false, "replay into an in-memory store instead of the configured one")
	return cmd
}
