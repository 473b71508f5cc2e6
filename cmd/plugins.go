package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilianp07/tendering/app/plugins"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the backend types accepted in the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		avail := plugins.Available()
		kinds := make([]string, 0, len(avail))
		for k := range avail {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", k, strings.Join(avail[plugins.Kind(k)], ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
}
