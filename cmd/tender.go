package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/tendering/core/model"
	"github.com/kilianp07/tendering/core/scoring"
	"github.com/kilianp07/tendering/infra/logger"
	"github.com/kilianp07/tendering/pkg/export"
	"github.com/kilianp07/tendering/qa/scenarios"
)

var (
	simStrategy  string
	simFormat    string
	scenarioFile string
)

var tenderCmd = &cobra.Command{
	Use:   "tender",
	Short: "Tender related commands",
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a three-carrier tender in memory and print the ranking",
	RunE: func(cmd *cobra.Command, args []string) error {
		return simulate(cmd.OutOrStdout(), model.Strategy(simStrategy), simFormat)
	},
}

var scenarioCmd = &cobra.Command{
	Use:   "scenario [name...]",
	Short: "Replay built-in or file based tender scenarios and check their outcome",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := selectScenarios(args, scenarioFile)
		if err != nil {
			return err
		}
		return replay(cmd.OutOrStdout(), list)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simStrategy, "strategy", string(model.StrategyBalanced), "auto-award strategy")
	simulateCmd.Flags().StringVar(&simFormat, "format", "table", "ranking output: table, csv or json")
	scenarioCmd.Flags().StringVarP(&scenarioFile, "file", "f", "", "scenario YAML file")
	tenderCmd.AddCommand(simulateCmd, scenarioCmd)
	rootCmd.AddCommand(tenderCmd)
}

func runLogger() logger.Logger {
	return logger.NewZerologLoggerTo(os.Stderr, "simulate")
}

// simulate replays the balanced award scenario under another strategy.
func simulate(w io.Writer, strategy model.Strategy, format string) error {
	sc, err := scenarios.Find("balanced_award")
	if err != nil {
		return err
	}
	sc.Tender.Strategy = strategy
	sc.Expected = scenarios.Expected{}
	out, err := scenarios.Run(sc, runLogger())
	if err != nil {
		return err
	}
	if format != "table" {
		return export.Write(w, export.Format(format), out.Ranking)
	}
	printRanking(w, out.Ranking)
	fmt.Fprintln(w, describe(out))
	return nil
}

func selectScenarios(names []string, file string) ([]*scenarios.Scenario, error) {
	if file != "" {
		sc, err := scenarios.Load(file)
		if err != nil {
			return nil, err
		}
		return []*scenarios.Scenario{sc}, nil
	}
	if len(names) == 0 {
		return scenarios.Builtin()
	}
	out := make([]*scenarios.Scenario, 0, len(names))
	for _, n := range names {
		sc, err := scenarios.Find(n)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func replay(w io.Writer, list []*scenarios.Scenario) error {
	failed := 0
	for _, sc := range list {
		out, err := scenarios.Run(sc, runLogger())
		if err != nil {
			return err
		}
		diffs := scenarios.Check(sc, out)
		if len(diffs) == 0 {
			fmt.Fprintf(w, "PASS %s: %s\n", sc.Name, describe(out))
			continue
		}
		failed++
		fmt.Fprintf(w, "FAIL %s\n", sc.Name)
		for _, d := range diffs {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(list))
	}
	return nil
}

func describe(out *scenarios.Outcome) string {
	switch out.Status {
	case model.StatusAwarded:
		return fmt.Sprintf("awarded to %s for %.2f", out.Winner, out.Amount)
	case model.StatusExpired:
		return "expired without bids"
	}
	return string(out.Status)
}

func printRanking(w io.Writer, r scoring.Ranking) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "strategy: %s\n", r.Strategy)
	fmt.Fprintln(tw, "RANK\tCARRIER\tTOTAL\tSCORE\tELIGIBLE")
	for i, res := range r.Results {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.4f\t%t\n", i+1, res.CarrierID, res.TotalCost, res.Score, res.Eligible)
	}
	_ = tw.Flush()
}
