package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/recruitin/kandidatentekort/internal/crm"
	"github.com/recruitin/kandidatentekort/internal/notify"
	"github.com/recruitin/kandidatentekort/internal/nurture"
)

var nurtureCmd = &cobra.Command{
	Use:   "nurture",
	Short: "Run or inspect the follow-up email sequence",
}

// -- nurture run --

var nurtureRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Send every due nurture email once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, cfg, "nurture")
		if err != nil {
			return err
		}
		defer env.Close()
		if env.Nurture == nil {
			return eris.New("nurture: crm not configured")
		}

		stats, err := env.Nurture.RunOnce(ctx)
		if err != nil {
			return eris.Wrap(err, "nurture run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

// -- nurture status --

var nurtureStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List deals in the sequence and their next step",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, cfg, "nurture")
		if err != nil {
			return err
		}
		defer env.Close()
		if env.CRM == nil {
			return eris.New("nurture: crm not configured")
		}

		cands, err := env.CRM.ListNurtureCandidates(ctx)
		if err != nil {
			return eris.Wrap(err, "nurture status")
		}
		if len(cands) == 0 {
			fmt.Fprintln(os.Stderr, "No deals in the nurture sequence.")
			return nil
		}

		formatNurtureStatus(os.Stdout, cands, env.Dispatcher.Renderer().Sequence(), time.Now())
		return nil
	},
}

func formatNurtureStatus(w io.Writer, cands []crm.NurtureCandidate, seq notify.Sequence, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEAL\tEMAIL\tSTARTED\tLAST STEP\tNEXT")
	for _, c := range cands {
		next := "-"
		step, due := nurture.NextDue(c.State, now, seq)
		switch {
		case c.State.Halted():
			next = string(c.State.Status)
		case due:
			next = fmt.Sprintf("step %d (due)", step.Step)
		default:
			if s, ok := seq.Step(c.State.NextStep()); ok {
				next = fmt.Sprintf("step %d on %s", s.Step, c.State.StartedAt.AddDate(0, 0, s.Day).Format("2006-01-02"))
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
			c.DealID, c.Email, c.State.StartedAt.Format("2006-01-02"), c.State.LastStep, next)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	nurtureCmd.AddCommand(nurtureRunCmd, nurtureStatusCmd)
	rootCmd.AddCommand(nurtureCmd)
}
