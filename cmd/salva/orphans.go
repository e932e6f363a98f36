package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	orphansUser   string
	minConfidence float64
)

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Group unmatched calendar events and promote recurring ones",
}

var orphansClusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Group orphan instances by title and list active clusters",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		ctx := cmd.Context()
		user, err := a.userByEmail(ctx, orphansUser)
		if err != nil {
			return err
		}
		if _, err := a.orphans().Cluster(ctx, user.ID); err != nil {
			return err
		}
		active, err := a.clusters.ListActive(ctx, user.ID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, c := range active {
			pattern := "-"
			if c.DetectedPattern != nil {
				pattern = *c.DetectedPattern
			}
			fmt.Fprintf(out, "%d\t%s\t%d events\t%s\tconfidence=%.2f\n", c.ID, c.RepresentativeTitle, len(c.Links), pattern, c.Confidence)
		}
		return nil
	}),
}

var orphansPromoteCmd = &cobra.Command{
	Use:   "promote [cluster-id]",
	Short: "Turn a cluster into a recurring template",
	Long: `Turn one cluster into a recurring template. Without an id, every active
cluster at or above --min-confidence is promoted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		orphans := a.orphans()

		if len(args) == 1 {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid cluster id %q", args[0])
			}
			tmpl, err := orphans.Promote(ctx, uint(id))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "cluster %d promoted to template %d %q\n", id, tmpl.ID, tmpl.Title)
			return nil
		}

		user, err := a.userByEmail(ctx, orphansUser)
		if err != nil {
			return err
		}
		promoted, failures, err := orphans.PromoteEligible(ctx, user.ID, minConfidence)
		if err != nil {
			return err
		}
		for _, t := range promoted {
			fmt.Fprintf(out, "template %d %q (%s)\n", t.ID, t.Title, t.RecurrencePattern)
		}
		for _, f := range failures {
			fmt.Fprintf(out, "  ! %s\n", f.Error())
		}
		return nil
	}),
}

var orphansDismissCmd = &cobra.Command{
	Use:   "dismiss <cluster-id>",
	Short: "Dismiss a cluster so it is never promoted",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid cluster id %q", args[0])
		}
		if err := a.clusters.Dismiss(cmd.Context(), uint(id)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cluster %d dismissed\n", id)
		return nil
	}),
}

func init() {
	orphansCmd.PersistentFlags().StringVarP(&orphansUser, "user", "u", "", "user email")
	orphansPromoteCmd.Flags().Float64Var(&minConfidence, "min-confidence", 0.7, "minimum cluster confidence for bulk promotion")

	orphansCmd.AddCommand(orphansClusterCmd)
	orphansCmd.AddCommand(orphansPromoteCmd)
	orphansCmd.AddCommand(orphansDismissCmd)
}
