package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	planUser string
	planDate string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Ask the generative scheduler to fill a day's free slots",
	Long: `Ask the generative scheduler for tasks that fit the day's free slots.
Accepted tasks are stored and pushed to the calendar by the next sync.`,
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		ctx := cmd.Context()
		user, err := a.userByEmail(ctx, planUser)
		if err != nil {
			return err
		}
		date := time.Now().UTC()
		if planDate != "" {
			if date, err = time.Parse(time.DateOnly, planDate); err != nil {
				return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", planDate)
			}
		}

		res, err := a.planner().PlanDay(ctx, user.ID, date)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, inst := range res.Created {
			fmt.Fprintf(out, "+ #%d %s %s\n", inst.ID, inst.ScheduledStart.Format("15:04"), inst.Title)
		}
		for _, r := range res.Rejected {
			fmt.Fprintf(out, "- %s %s-%s (rejected)\n", r.Title, r.Start, r.End)
		}
		if res.Reasoning != "" {
			fmt.Fprintf(out, "\n%s\n", res.Reasoning)
		}
		return nil
	}),
}

func init() {
	planCmd.Flags().StringVarP(&planUser, "user", "u", "", "user email")
	planCmd.Flags().StringVar(&planDate, "date", "", "day to plan (YYYY-MM-DD), today by default")
}
