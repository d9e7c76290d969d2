package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"roundledger/internal/coordinator"
	"roundledger/internal/models"
	"roundledger/internal/store"
)

func newStatusCmd(a *app) *cobra.Command {
	var (
		rounds  int
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the tip, the current round and the latest finalized rounds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.status(cmd, os.Stdout, rounds, verbose)
		},
	}
	cmd.Flags().IntVarP(&rounds, "rounds", "n", 5, "number of finalized rounds to list")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "dump full round records")
	return cmd
}

func (a *app) status(cmd *cobra.Command, w io.Writer, rounds int, verbose bool) error {
	ctx := cmd.Context()
	log, err := a.logger()
	if err != nil {
		return err
	}
	defer log.Close()

	s, err := a.openStore(log)
	if err != nil {
		return err
	}
	defer s.Close()

	coord, err := a.newCoordinator(s, log)
	if err != nil {
		return err
	}
	tip, err := coord.TipHeight(ctx)
	if err != nil {
		return err
	}
	digest, err := coord.StateDigest(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "store: %s\n", a.cfg.Store())
	fmt.Fprintf(w, "tip height: %d\n", tip)
	fmt.Fprintf(w, "state digest: %s\n", digest)
	if tip == 0 {
		return nil
	}

	round := coordinator.CalcRound(tip, coord.SlotCount())
	rs, err := coord.CurrentRoundState(ctx, round)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "round %d: %d/%d blocks, fees %d, finalized=%t permanent=%t\n",
		rs.Round, rs.ForgedSoFar, rs.SlotCount, rs.AccumulatedFees, rs.Finalized, rs.Permanent)

	var records []models.RoundRecord
	from := round - int64(rounds)
	if from < 1 {
		from = 1
	}
	err = s.View(ctx, func(r store.Reader) error {
		var err error
		records, err = r.RoundRecords(from)
		return err
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUND\tHEIGHTS\tFEES\tREMAINDER\tOUTSIDERS\tPERMANENT\tFINALIZED")
	for _, rec := range records {
		fmt.Fprintf(tw, "%d\t%d-%d\t%d\t%d\t%d\t%t\t%s\n",
			rec.Round, rec.StartHeight, rec.EndHeight, rec.TotalFees, rec.FeesRemaining,
			len(rec.Outsiders), rec.Permanent, rec.FinalizedAt.Format("2006-01-02 15:04:05"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if verbose {
		spew.Fdump(w, records)
	}
	return nil
}
