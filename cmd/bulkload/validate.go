package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var list string

	cmd := &cobra.Command{
		Use:   "validate [job-file...]",
		Short: "Check job files without loading anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := jobPaths(args, list)
			if err != nil {
				return err
			}
			jobs, err := loadJobs(cmd.ErrOrStderr(), paths, cmd.Flags())
			if err != nil {
				return err
			}
			for _, j := range jobs {
				fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", label(j))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&list, "list", "", "file listing job files, one per line")
	addJobFlags(cmd.Flags())
	return cmd
}
