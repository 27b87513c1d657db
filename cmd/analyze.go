package main

import (
	"encoding/json"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/recruitin/kandidatentekort/internal/analysis"
	"github.com/recruitin/kandidatentekort/internal/model"
)

var (
	analyzeCompany string
	analyzeSector  string
	analyzeGoal    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Extract and analyse a local vacancy document",
	Long:  "Reads a PDF, DOCX, HTML or text file, extracts the vacancy text and prints the analysis as JSON. Nothing is emailed or written to the CRM.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "analyze: read %s", args[0])
		}

		env, err := initApp(ctx, cfg, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		ctype := mime.TypeByExtension(strings.ToLower(filepath.Ext(args[0])))
		text, err := env.Extractor.FromBytes(ctx, data, ctype, filepath.Base(args[0]))
		if err != nil {
			return eris.Wrap(err, "analyze: extract")
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return eris.New("analyze: no text found in document")
		}

		res, err := env.Analyzer.Analyze(ctx, analysis.Input{
			Text:    text,
			Company: analyzeCompany,
			Sector:  analyzeSector,
			Goal:    analyzeGoal,
		})
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Title    string                `json:"title"`
			Chars    int                   `json:"chars"`
			Analysis *model.AnalysisResult `json:"analysis"`
		}{model.DeriveTitle(text), len([]rune(text)), res})
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeCompany, "company", "", "company name for context")
	analyzeCmd.Flags().StringVar(&analyzeSector, "sector", "", "sector for context")
	analyzeCmd.Flags().StringVar(&analyzeGoal, "goal", "", "recruitment goal for context")
	rootCmd.AddCommand(analyzeCmd)
}
