package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/micro-nova/lms-announce/internal/models"
)

var statusOpts struct {
	json bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the coordinator phase and per-zone status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusOpts.json, "json", false,
		"Print the raw JSON status")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), globalOpts.timeout)
	defer cancel()

	st, err := newClient().status(ctx)
	if err != nil {
		return err
	}
	if statusOpts.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	return printStatus(cmd.OutOrStdout(), st)
}

func printStatus(w io.Writer, st models.CoordinatorStatus) error {
	fmt.Fprintf(w, "phase: %s  batches: %d captured, %d restored  queued: %d\n",
		st.Phase, st.Captures, st.Restores, st.Inbound)
	if len(st.Groups) > 0 {
		groups := make([]string, 0, len(st.Groups))
		for _, g := range st.Groups {
			groups = append(groups, strings.Join(g, "+"))
		}
		fmt.Fprintf(w, "groups: %s\n", strings.Join(groups, ", "))
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ZONE\tSTATUS\tPENDING\tACTIVE")
	for _, z := range st.Zones {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\n", z.Zone, z.Status, z.Pending, z.Active)
	}
	return tw.Flush()
}
