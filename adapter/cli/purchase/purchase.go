package purchase

import "github.com/spf13/cobra"

// Cmd is the purchases command group.
var Cmd = &cobra.Command{
	Use:     "purchases",
	Aliases: []string{"purchase"},
	Short:   "Inspect and manage simulated purchases",
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(historyCmd)
	Cmd.AddCommand(consumeCmd)
	Cmd.AddCommand(ackCmd)
	Cmd.AddCommand(clearCmd)
}
