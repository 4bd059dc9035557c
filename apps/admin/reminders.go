package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func (cli *commandLine) newRemindersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Reminder batch commands",
	}

	var date string
	run := &cobra.Command{
		Use:   "run",
		Short: "Run one reminder batch now and print its summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := cli.container(ctx)
			if err != nil {
				return err
			}
			sum, err := c.Runner.Run(ctx, date)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		},
	}
	run.Flags().StringVar(&date, "date", "", "batch date, YYYY-MM-DD (defaults to today)")

	cmd.AddCommand(run)
	return cmd
}
