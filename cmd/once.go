package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single ingestion pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer appInstance.Close() //nolint:errcheck // exit path

			report, err := appInstance.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range report.Sections {
				status := "ok"
				if s.Error != "" {
					status = "error: " + s.Error
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s candidates=%d saved=%d %s\n", s.Section, s.Candidates, s.Saved, status)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total saved: %d\n", report.TotalSaved)
			if report.Failed() == len(report.Sections) && len(report.Sections) > 0 {
				return fmt.Errorf("all %d sections failed", len(report.Sections))
			}
			return nil
		},
	}
}
