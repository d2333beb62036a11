package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewNotificationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Short:   "Notification history and delivery",
		Aliases: []string{"notification", "n"},
	}

	var (
		eventID uint
		status  string
		limit   int
	)
	list := &cobra.Command{
		Use:     "list",
		Short:   "List notifications",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := newClient().ListNotifications(commandContext(cmd), eventID, status, limit)
			if err != nil {
				return fmt.Errorf("failed to list notifications: %w", err)
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tEVENT\tCHANNEL\tRECIPIENT\tTYPE\tSTATUS\tRETRIES\tERROR")
			for _, r := range rows {
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
					r.ID, r.AlertEventID, r.Channel, r.Recipient, r.MessageType, r.Status, r.RetryCount, r.ErrorMessage)
			}
			return w.Flush()
		},
	}
	list.Flags().UintVar(&eventID, "event", 0, "Only notifications of this event")
	list.Flags().StringVar(&status, "status", "", "Filter by status (pending/sent/failed/retry)")
	list.Flags().IntVar(&limit, "limit", 0, "Maximum number of rows")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "get [notification_id]",
		Short: "Show one notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			row, err := newClient().GetNotification(commandContext(cmd), id)
			if err != nil {
				return fmt.Errorf("failed to get notification: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), row)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "retry [notification_id]",
		Short: "Re-deliver a failed notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			row, err := newClient().RetryNotification(commandContext(cmd), id)
			if err != nil {
				return fmt.Errorf("failed to retry notification: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Notification %d is %s\n", row.ID, row.Status)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Deliver pending recovery notifications now",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newClient().RecoverySweep(commandContext(cmd))
			if err != nil {
				return fmt.Errorf("failed to run recovery sweep: %w", err)
			}
			if res.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "A sweep is already running")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Events: %d, sent: %d, failed: %d, completed: %d\n",
				res.Events, res.Sent, res.Failed, res.Notified)
			return nil
		},
	})

	return cmd
}
