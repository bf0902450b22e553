package product

import "github.com/spf13/cobra"

// Cmd is the products command group.
var Cmd = &cobra.Command{
	Use:     "products",
	Aliases: []string{"product"},
	Short:   "Manage the simulated product catalog",
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(removeCmd)
	Cmd.AddCommand(clearCmd)
	Cmd.AddCommand(importCmd)
}
