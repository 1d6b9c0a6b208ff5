package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nomis52/cloudstats/metrics"
)

func newPushCmd(flags *globalFlags) *cobra.Command {
	var url, instance string

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push the registry gauges to a VictoriaMetrics remote write endpoint",
		Long: `Load the statistics document and push its gauges (active, history, capacity
and active by phase) to a Prometheus remote write endpoint. The URL defaults to
monitoring.victoriametrics_url from the config.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.config()
			if err != nil {
				return err
			}
			if url == "" {
				url = cfg.Monitoring.VictoriaMetricsURL
			}
			if url == "" {
				return fmt.Errorf("no remote write URL, set --url or monitoring.victoriametrics_url")
			}
			if instance == "" {
				if instance, err = os.Hostname(); err != nil {
					return fmt.Errorf("failed to get hostname: %w", err)
				}
			}

			logger, err := flags.logger()
			if err != nil {
				return err
			}
			pushRegistry := metrics.NewPushRegistry(metrics.PushConfig{
				URL:      url,
				Prefix:   cfg.Monitoring.MetricsPrefix,
				Job:      cfg.Monitoring.JobName,
				Instance: instance,
				Logger:   logger,
			})

			reg, err := flags.open(cmd.Context(), pushRegistry)
			if err != nil {
				return err
			}
			if n := pushRegistry.Failures(); n > 0 {
				return fmt.Errorf("%d samples could not be pushed to %s", n, url)
			}

			active, archived, capacity := reg.Counts()
			fmt.Fprintf(cmd.OutOrStdout(), "pushed active=%d history=%d capacity=%d to %s\n",
				active, archived, capacity, url)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Remote write base URL, e.g. http://localhost:8428")
	cmd.Flags().StringVar(&instance, "instance", "", "Instance label (default: hostname)")
	return cmd
}
