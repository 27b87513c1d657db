package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/recruitin/kandidatentekort/internal/model"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Inspect and release reports held for manual review",
}

// -- pending list --

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List held reports that have not been sent",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, cfg, "pending")
		if err != nil {
			return err
		}
		defer env.Close()

		reports, err := env.Review.Pending(ctx)
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "No pending reports.")
			return nil
		}

		formatPendingList(os.Stdout, reports)
		return nil
	},
}

func formatPendingList(w io.Writer, reports []model.PendingReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEAL\tEMAIL\tCOMPANY\tSCORE\tHELD SINCE")
	for _, r := range reports {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f/%.0f\t%s\n",
			r.DealID, r.Email, r.Company,
			r.Analysis.OverallScore, r.Analysis.MaxScore,
			r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	tw.Flush() //nolint:errcheck
}

// -- pending approve --

var pendingApproveCmd = &cobra.Command{
	Use:   "approve <deal-id>",
	Short: "Send the held report for a deal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		dealID, err := strconv.Atoi(args[0])
		if err != nil || dealID <= 0 {
			return eris.Errorf("invalid deal id %q", args[0])
		}

		env, err := initApp(ctx, cfg, "pending")
		if err != nil {
			return err
		}
		defer env.Close()

		r, err := env.Review.Approve(ctx, dealID)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Report for deal %d sent to %s\n", dealID, r.Email)
		return nil
	},
}

// -- pending export --

var pendingExportOut string

var pendingExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the review queue and failed emails to a spreadsheet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, cfg, "pending")
		if err != nil {
			return err
		}
		defer env.Close()

		reports, err := env.Review.Pending(ctx)
		if err != nil {
			return err
		}
		failed, err := env.Store.ListFailedEmails(ctx, 0)
		if err != nil {
			return eris.Wrap(err, "pending export: failed emails")
		}

		if err := writePendingXLSX(pendingExportOut, reports, failed); err != nil {
			return err
		}
		zap.L().Info("pending export written",
			zap.String("path", pendingExportOut),
			zap.Int("pending", len(reports)),
			zap.Int("failed_emails", len(failed)),
		)
		return nil
	},
}

// writePendingXLSX writes one sheet of held reports and one of failed
// email sends.
func writePendingXLSX(path string, reports []model.PendingReport, failed []model.FailedEmail) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("Pending")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}
	addRow(sheet, "Deal", "Email", "First name", "Company", "Vacancy", "Score", "Max", "Score /10", "Held since")
	for _, r := range reports {
		row := sheet.AddRow()
		row.AddCell().SetInt(r.DealID)
		row.AddCell().SetString(r.Email)
		row.AddCell().SetString(r.FirstName)
		row.AddCell().SetString(r.Company)
		row.AddCell().SetString(r.Title)
		row.AddCell().SetFloat(r.Analysis.OverallScore)
		row.AddCell().SetFloat(r.Analysis.MaxScore)
		row.AddCell().SetFloat(r.Analysis.Score10)
		row.AddCell().SetString(r.CreatedAt.UTC().Format("2006-01-02 15:04"))
	}

	dead, err := f.AddSheet("Failed emails")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}
	addRow(dead, "ID", "Recipient", "Kind", "Subject", "Error", "At")
	for _, fe := range failed {
		addRow(dead, fe.ID, fe.Recipient, fe.Kind, fe.Subject, fe.Error, fe.CreatedAt.UTC().Format("2006-01-02 15:04"))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func init() {
	pendingExportCmd.Flags().StringVarP(&pendingExportOut, "out", "o", "pending.xlsx", "output file")
	pendingCmd.AddCommand(pendingListCmd, pendingApproveCmd, pendingExportCmd)
	rootCmd.AddCommand(pendingCmd)
}
