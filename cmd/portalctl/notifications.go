package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/txn2/solar-portal/pkg/notification"
)

func newNotificationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"n"},
		Short:   "Read and manage notifications",
	}
	cmd.AddCommand(
		newNotificationsListCmd(a),
		newNotificationsUnreadCmd(a),
		newNotificationsReadCmd(a),
		newNotificationsReadAllCmd(a),
		newNotificationsDeleteCmd(a),
	)
	return cmd
}

func newNotificationsListCmd(a *app) *cobra.Command {
	var filter notification.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.sessionClient()
			if err != nil {
				return err
			}
			page, err := c.ListNotifications(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(cmd, page)
			}
			if len(page.Data) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No notifications")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tTYPE\tPROJECT\tREAD\tCREATED")
			for _, rec := range page.Data {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
					rec.ID, rec.Type, rec.ProjectID, rec.Read, rec.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&filter.UnreadOnly, "unread", false, "only unread notifications")
	cmd.Flags().StringVar(&filter.ProjectID, "project", "", "only notifications for this project")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "page offset")
	return cmd
}

func newNotificationsUnreadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unread",
		Short: "Print the unread count",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.sessionClient()
			if err != nil {
				return err
			}
			n, err := c.UnreadCount(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
}

func newNotificationsReadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read ID",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.sessionClient()
			if err != nil {
				return err
			}
			return c.MarkRead(cmd.Context(), args[0])
		},
	}
}

func newNotificationsReadAllCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification read",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.sessionClient()
			if err != nil {
				return err
			}
			n, err := c.MarkAllRead(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Marked %d read\n", n)
			return nil
		},
	}
}

func newNotificationsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.sessionClient()
			if err != nil {
				return err
			}
			return c.DeleteNotification(cmd.Context(), args[0])
		},
	}
}
