package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewPostMortemCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "postmortem",
		Short:   "Post-mortem reports",
		Aliases: []string{"pm", "post-mortem"},
	}

	cmd.AddCommand(newPostMortemListCommand())
	cmd.AddCommand(newPostMortemGetCommand())
	cmd.AddCommand(newPostMortemCreateCommand())
	cmd.AddCommand(newPostMortemUpdateCommand())
	cmd.AddCommand(newPostMortemCompleteCommand())
	cmd.AddCommand(newPostMortemReviewCommand())
	cmd.AddCommand(newPostMortemReportCommand())
	cmd.AddCommand(newPostMortemMetricsCommand())

	return cmd
}

func newPostMortemListCommand() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List post-mortems",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			pms, err := newClient().ListPostMortems(commandContext(cmd), status, limit)
			if err != nil {
				return fmt.Errorf("failed to list post-mortems: %w", err)
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tEVENT\tSTATUS\tSEVERITY\tDOWNTIME (min)\tTITLE")
			for _, pm := range pms {
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\t%s\n",
					pm.ID, pm.AlertEventID, pm.Status, pm.Severity, pm.DowntimeMinutes, pm.Title)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (draft/in_progress/completed/reviewed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of post-mortems")
	return cmd
}

func newPostMortemGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get [post_mortem_id]",
		Short: "Show one post-mortem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			pm, err := newClient().GetPostMortem(commandContext(cmd), id)
			if err != nil {
				return fmt.Errorf("failed to get post-mortem: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), pm)
		},
	}
}

func newPostMortemCreateCommand() *cobra.Command {
	var (
		title  string
		author string
	)

	cmd := &cobra.Command{
		Use:   "create [event_id]",
		Short: "Open a post-mortem for an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID(args[0])
			if err != nil {
				return err
			}
			fields := map[string]interface{}{}
			if title != "" {
				fields["title"] = title
			}
			if author != "" {
				fields["author"] = author
			}
			pm, err := newClient().CreatePostMortem(commandContext(cmd), eventID, fields)
			if err != nil {
				return fmt.Errorf("failed to create post-mortem: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Post-mortem %d created\n", pm.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Title (defaults to the event title)")
	cmd.Flags().StringVar(&author, "author", "", "Author")
	return cmd
}

func newPostMortemUpdateCommand() *cobra.Command {
	var (
		status         string
		rootCause      string
		trigger        string
		resolution     string
		lessonsLearned string
		summary        string
	)

	cmd := &cobra.Command{
		Use:   "update [post_mortem_id]",
		Short: "Edit the narrative of a post-mortem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			fields := map[string]interface{}{}
			flags := map[string]string{
				"status":                 status,
				"root_cause":             rootCause,
				"trigger":                trigger,
				"resolution_description": resolution,
				"lessons_learned":        lessonsLearned,
				"summary":                summary,
			}
			for key, v := range flags {
				if v != "" {
					fields[key] = v
				}
			}
			if len(fields) == 0 {
				return fmt.Errorf("nothing to update")
			}
			pm, err := newClient().UpdatePostMortem(commandContext(cmd), id, fields)
			if err != nil {
				return fmt.Errorf("failed to update post-mortem: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Post-mortem %d updated (%s)\n", pm.ID, pm.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "draft or in_progress")
	cmd.Flags().StringVar(&rootCause, "root-cause", "", "Root cause")
	cmd.Flags().StringVar(&trigger, "trigger", "", "What triggered the incident")
	cmd.Flags().StringVar(&resolution, "resolution", "", "How it was resolved")
	cmd.Flags().StringVar(&lessonsLearned, "lessons", "", "Lessons learned")
	cmd.Flags().StringVar(&summary, "summary", "", "Summary")
	return cmd
}

func newPostMortemCompleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "complete [post_mortem_id]",
		Short: "Mark a post-mortem completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			pm, err := newClient().CompletePostMortem(commandContext(cmd), id)
			if err != nil {
				return fmt.Errorf("failed to complete post-mortem: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Post-mortem %d completed\n", pm.ID)
			return nil
		},
	}
}

func newPostMortemReviewCommand() *cobra.Command {
	var reviewer string

	cmd := &cobra.Command{
		Use:   "review [post_mortem_id]",
		Short: "Mark a post-mortem reviewed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			pm, err := newClient().ReviewPostMortem(commandContext(cmd), id, reviewer)
			if err != nil {
				return fmt.Errorf("failed to review post-mortem: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Post-mortem %d reviewed by %s\n", pm.ID, pm.ReviewedBy)
			return nil
		},
	}

	cmd.Flags().StringVar(&reviewer, "reviewer", "", "Reviewer name")
	cmd.MarkFlagRequired("reviewer")
	return cmd
}

func newPostMortemReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report [post_mortem_id]",
		Short: "Show incident metrics for a post-mortem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rep, err := newClient().PostMortemReport(commandContext(cmd), id)
			if err != nil {
				return fmt.Errorf("failed to build report: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), rep)
		},
	}
}

func newPostMortemMetricsCommand() *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show MTTR and MTBF over a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			to := time.Now().UTC()
			from := to.Add(-since)
			summary, err := newClient().ReliabilitySummary(commandContext(cmd), &from, &to)
			if err != nil {
				return fmt.Errorf("failed to get metrics: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Incidents: %d (%d resolved, %d auto-resolved)\n", summary.Incidents, summary.Resolved, summary.AutoResolved)
			fmt.Fprintf(out, "MTTR:      %s\n", optional(summary.MTTRMinutes, "min"))
			fmt.Fprintf(out, "MTBF:      %s\n", optional(summary.MTBFHours, "h"))
			fmt.Fprintf(out, "Downtime:  %.1f min\n", summary.TotalDowntime)

			if len(summary.Sites) > 0 {
				w := newTable(out)
				fmt.Fprintln(w, "SITE\tINCIDENTS\tMTTR\tMTBF")
				for _, s := range summary.Sites {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.SiteID, s.Incidents, optional(s.MTTRMinutes, "min"), optional(s.MTBFHours, "h"))
				}
				return w.Flush()
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 30*24*time.Hour, "Length of the period ending now")
	return cmd
}

func optional(v *float64, unit string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f %s", *v, unit)
}
