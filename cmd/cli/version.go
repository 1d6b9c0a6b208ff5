package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nomis52/cloudstats/buildinfo"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cloudstats %s\n", buildinfo.Get())
		},
	}
}
