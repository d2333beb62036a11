package commands

import (
	"fmt"

	"github.com/sitewatch/internal/api/client"
	"github.com/sitewatch/internal/models"
	"github.com/spf13/cobra"
)

func NewEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "events",
		Short:   "Incident management commands",
		Aliases: []string{"event", "e"},
	}

	cmd.AddCommand(newEventListCommand())
	cmd.AddCommand(newEventGetCommand())
	cmd.AddCommand(newEventCreateCommand())
	cmd.AddCommand(newEventTransitionCommand("acknowledge", []string{"ack"}))
	cmd.AddCommand(newEventTransitionCommand("resolve", nil))
	cmd.AddCommand(newEventDeleteCommand())

	return cmd
}

func newEventListCommand() *cobra.Command {
	var (
		q      client.EventQuery
		active bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List events",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			var (
				events []models.AlertEvent
				err    error
			)
			if active {
				events, err = c.ListActiveEvents(commandContext(cmd))
			} else {
				events, err = c.ListEvents(commandContext(cmd), q)
			}
			if err != nil {
				return fmt.Errorf("failed to list events: %w", err)
			}

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tSITE\tTYPE\tSEVERITY\tSTATUS\tOUTAGE %\tCREATED\tRESOLVED")
			for _, e := range events {
				created := e.CreatedAt
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%.1f\t%s\t%s\n",
					e.ID, e.SiteID, e.EventType, e.Severity, e.Status, e.OutagePercentage,
					formatTime(&created), formatTime(e.ResolvedAt))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&q.Status, "status", "", "Filter by status (active/acknowledged/resolved/ignored)")
	cmd.Flags().StringVar(&q.Severity, "severity", "", "Filter by severity (critical/high/medium/low/info)")
	cmd.Flags().StringVar(&q.EventType, "type", "", "Filter by event type")
	cmd.Flags().StringVar(&q.SiteID, "site", "", "Filter by site id")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "Maximum number of events")
	cmd.Flags().BoolVar(&active, "active", false, "Only open events")

	return cmd
}

func newEventGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get [event_id]",
		Short: "Show one event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			event, err := newClient().GetEvent(commandContext(cmd), id)
			if err != nil {
				return fmt.Errorf("failed to get event: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), event)
		},
	}
}

func newEventCreateCommand() *cobra.Command {
	var (
		title       string
		description string
		severity    string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a custom event",
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := newClient().CreateEvent(commandContext(cmd), map[string]interface{}{
				"title":       title,
				"description": description,
				"severity":    severity,
			})
			if err != nil {
				return fmt.Errorf("failed to create event: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Event %d created\n", event.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Event title")
	cmd.Flags().StringVar(&description, "description", "", "Event description")
	cmd.Flags().StringVar(&severity, "severity", "", "Severity (default medium)")
	cmd.MarkFlagRequired("title")

	return cmd
}

func newEventTransitionCommand(action string, aliases []string) *cobra.Command {
	var (
		user string
		note string
	)

	cmd := &cobra.Command{
		Use:     action + " [event_id]",
		Short:   fmt.Sprintf("Mark an event as %sd", action),
		Aliases: aliases,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c := newClient()
			var event *models.AlertEvent
			if action == "resolve" {
				event, err = c.ResolveEvent(commandContext(cmd), id, user, note)
			} else {
				event, err = c.AcknowledgeEvent(commandContext(cmd), id, user, note)
			}
			if err != nil {
				return fmt.Errorf("failed to %s event: %w", action, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Event %d is %s\n", event.ID, event.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Operator name")
	cmd.Flags().StringVar(&note, "note", "", "Add a note")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newEventDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete [event_id]",
		Short:   "Delete an event (notification history is kept)",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := newClient().DeleteEvent(commandContext(cmd), id); err != nil {
				return fmt.Errorf("failed to delete event: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Event %d deleted\n", id)
			return nil
		},
	}
}
