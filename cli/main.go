package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string

var RootCmd = &cobra.Command{
	Use:   "flagdb",
	Short: "Pack named boolean flags into minimal integer columns.",
	Long: `
flagdb declares flag columns, encodes and decodes their integers, and keeps
rows of flag columns in a single data file that can be filtered by flag state.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		log.SetLevel(level)
		log.SetOutput(cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
