package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kfcempoyee/gofiledrop/internal/registry/service"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "run one reaper sweep and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer reg.close()

		reaper := service.NewReaper(reg.repo, reg.store, reg.cfg.SweepInterval, reg.logger)
		res := reaper.RunOnce(cmd.Context())

		fmt.Fprintf(cmd.OutOrStdout(), "expired tokens: %d, orphans: %d, files deleted: %d, blob errors: %d, errors: %d\n",
			res.ExpiredTokens, res.Orphans, res.FilesDeleted, res.BlobErrors, res.Errors)

		if res.Errors > 0 {
			return fmt.Errorf("sweep finished with %d errors", res.Errors)
		}
		return nil
	},
}
