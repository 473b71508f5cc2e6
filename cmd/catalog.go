package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/tendering/config"
	"github.com/kilianp07/tendering/core/catalog"
)

var catalogFile string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Carrier catalog commands",
}

var catalogLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List carrier pools and their carriers",
	RunE:  runCatalogLs,
}

func init() {
	catalogLsCmd.Flags().StringVarP(&catalogFile, "file", "f", "", "catalog snapshot (defaults to catalog.path from the configuration)")
	catalogCmd.AddCommand(catalogLsCmd)
	rootCmd.AddCommand(catalogCmd)
}

func runCatalogLs(cmd *cobra.Command, args []string) error {
	path := catalogFile
	if path == "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		path = cfg.Catalog.Path
	}
	snap, err := catalog.Load(path)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	cat, err := catalog.New(snap)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "POOL\tPRIORITY\tLANES\tSERVICES\tCARRIER\tRATING\tON TIME\tACTIVE")
	for _, p := range cat.Pools() {
		lanes := make([]string, len(p.LaneTypes))
		for i, l := range p.LaneTypes {
			lanes[i] = string(l)
		}
		services := make([]string, len(p.Services))
		for i, s := range p.Services {
			services[i] = string(s)
		}
		for _, id := range p.Carriers {
			// Snapshot validation guarantees every pool member is known.
			c, _ := cat.Carrier(id)
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%.1f\t%.1f%%\t%t\n", p.Name, p.Priority, strings.Join(lanes, ","), strings.Join(services, ","), c.ID, c.Rating, c.OnTimeRate, c.Active)
		}
	}
	return w.Flush()
}
