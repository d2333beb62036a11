package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewScanCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one monitoring pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := newClient().Scan(commandContext(cmd))
			if err != nil {
				return fmt.Errorf("failed to run scan: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, summary)
			}

			fmt.Fprintf(out, "Pass %s finished in %dms\n", summary.PassID, summary.DurationMs)
			fmt.Fprintf(out, "  sites checked:   %d\n", summary.SitesChecked)
			fmt.Fprintf(out, "  down/degraded:   %d/%d\n", summary.SitesDown, summary.SitesDegraded)
			fmt.Fprintf(out, "  skipped:         %d\n", summary.SitesSkipped)
			fmt.Fprintf(out, "  events created:  %d\n", summary.EventsCreated)
			fmt.Fprintf(out, "  events resolved: %d\n", summary.EventsResolved)
			fmt.Fprintf(out, "  errors:          %d\n", summary.Errors)
			if summary.ProviderError != "" {
				fmt.Fprintf(out, "  provider error:  %s\n", summary.ProviderError)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw pass summary")
	return cmd
}

func NewPollingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "polling",
		Short: "Control the background polling loop",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show polling status",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := newClient().PollingStatus(commandContext(cmd))
			if err != nil {
				return fmt.Errorf("failed to get polling status: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running:   %v\n", st.Running)
			fmt.Fprintf(out, "Enabled:   %v\n", st.Enabled)
			fmt.Fprintf(out, "Interval:  %s\n", st.Interval)
			fmt.Fprintf(out, "In flight: %v\n", st.PassInProgress)
			fmt.Fprintf(out, "Last pass: %s\n", formatTime(st.LastPassAt))
			return nil
		},
	})

	cmd.AddCommand(newPollingToggleCommand("start", "Start the polling loop", "Polling started", true))
	cmd.AddCommand(newPollingToggleCommand("stop", "Stop the polling loop after the current pass", "Polling stopped", false))

	return cmd
}

func newPollingToggleCommand(use, short, done string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newClient().SetPolling(commandContext(cmd), enabled)
			if err != nil {
				return fmt.Errorf("failed to %s polling: %w", use, err)
			}
			if warning, ok := res["warning"]; ok {
				fmt.Fprintf(cmd.OutOrStdout(), "Warning: %v\n", warning)
			}
			fmt.Fprintln(cmd.OutOrStdout(), done)
			return nil
		},
	}
}

func NewSitesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sites",
		Short:   "Site monitoring state",
		Aliases: []string{"site"},
	}

	var outages bool
	list := &cobra.Command{
		Use:     "list",
		Short:   "List monitored sites",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return listSites(cmd, outages)
		},
	}
	list.Flags().BoolVar(&outages, "outages", false, "Only sites that are degraded or down")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "outages",
		Short: "List sites that are degraded or down, worst first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listSites(cmd, true)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get [site_id]",
		Short: "Show a site and its recent events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := newClient().GetSite(commandContext(cmd), args[0])
			if err != nil {
				return fmt.Errorf("failed to get site: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), detail)
		},
	})

	return cmd
}

func listSites(cmd *cobra.Command, outagesOnly bool) error {
	sites, err := newClient().ListSites(commandContext(cmd), outagesOnly)
	if err != nil {
		return fmt.Errorf("failed to list sites: %w", err)
	}
	w := newTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "SITE\tNAME\tTIER\tDOWN/TOTAL\tOUTAGE %\tCHECKED")
	for _, s := range sites {
		checked := s.LastCheckedAt
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%.1f\t%s\n",
			s.SiteID, s.SiteName, s.Tier, s.DeviceOutageCount, s.DeviceCount, s.OutagePercentage, formatTime(&checked))
	}
	return w.Flush()
}
