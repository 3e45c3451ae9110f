package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	for _, envFile := range []string{".env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "simulator",
		Short:        "Roll out baseline policies in the supplier-selection environment",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "configs/simulator.yaml", "Path to the YAML configuration")
	root.AddCommand(newRunCmd(), newInspectCmd())
	return root
}
