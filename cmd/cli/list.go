package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nomis52/cloudstats/activity"
	"github.com/nomis52/cloudstats/server/handlers"
	"github.com/nomis52/cloudstats/stats"
)

func newListCmd(flags *globalFlags) *cobra.Command {
	var activeOnly, jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked activities, history first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := flags.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			activities := reg.Activities()
			if activeOnly {
				activities = reg.NotCompleted()
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), handlers.ActivitiesResponse{Activities: views(activities)})
			}
			return writeTable(cmd.OutOrStdout(), activities)
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only list activities that have not completed")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func newShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show FINGERPRINT",
		Short: "Show one activity with its phases and attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fp uint64
			if _, err := fmt.Sscan(args[0], &fp); err != nil {
				return fmt.Errorf("invalid fingerprint %q", args[0])
			}
			reg, err := flags.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			a := reg.ByFingerprint(fp)
			if a == nil {
				return fmt.Errorf("no activity with fingerprint %d", fp)
			}
			return writeJSON(cmd.OutOrStdout(), handlers.NewActivityView(a))
		},
	}
}

func newIndexCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Summarize activity health by cloud and template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := flags.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			return writeIndex(cmd.OutOrStdout(), reg.Index())
		},
	}
}

func views(activities []*activity.Activity) []handlers.ActivityView {
	out := make([]handlers.ActivityView, 0, len(activities))
	for _, a := range activities {
		out = append(out, handlers.NewActivityView(a))
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, activities []*activity.Activity) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FINGERPRINT\tNAME\tCLOUD\tTEMPLATE\tPHASE\tSTATUS\tSTARTED")
	for _, a := range activities {
		id := a.ID()
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			id.Fingerprint(), a.Name(), id.Cloud, orDash(id.Template),
			a.CurrentPhase(), a.Status(), a.StartedAt().Format(time.RFC3339))
	}
	return tw.Flush()
}

func writeIndex(w io.Writer, idx *stats.Index) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLOUD\tTEMPLATE\tTOTAL\tOK\tWARN\tFAIL")
	for _, cloud := range idx.Clouds() {
		h := stats.HealthOf(idx.ForCloud(cloud))
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", cloud, "*", h.Total, h.OK, h.Warn, h.Fail)
	}
	for _, key := range idx.Templates() {
		h := stats.HealthOf(idx.ForTemplate(key.Cloud, key.Template))
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", key.Cloud, key.Template, h.Total, h.OK, h.Warn, h.Fail)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
