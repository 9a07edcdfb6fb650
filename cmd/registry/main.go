package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "registry",
	Short:        "gofiledrop access registry",
	Long:         `owns file records, access codes and links; serves them over gRPC and reaps expired ones`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, sweepCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
