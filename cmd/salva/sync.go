package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"salva/internal/service"
)

var syncUser string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation cycle now",
	Long: `Run one cycle: pull the calendar, match pending events to templates,
materialize the week when due, then push new instances.`,
	RunE: withApp(runSync),
}

func init() {
	syncCmd.Flags().StringVarP(&syncUser, "user", "u", "", "only run the cycle for this email")
}

func runSync(cmd *cobra.Command, _ []string, a *app) error {
	ctx := cmd.Context()
	sync, err := a.calendarSync()
	if err != nil {
		return err
	}
	cycle := a.cycle(sync)

	var reports []*service.CycleReport
	if syncUser != "" {
		user, err := a.userByEmail(ctx, syncUser)
		if err != nil {
			return err
		}
		report, err := cycle.RunUser(ctx, *user)
		if err != nil {
			return err
		}
		reports = append(reports, report)
	} else {
		reports, err = cycle.RunAll(ctx)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	for _, r := range reports {
		fmt.Fprintf(out, "user %d: %s\n", r.UserID, summarize(r))
		for _, f := range r.Failures() {
			fmt.Fprintf(out, "  ! %s\n", f.Error())
		}
	}
	return nil
}

func summarize(r *service.CycleReport) string {
	var pulled, pushed, cancelled, matched, orphaned, created int
	for _, s := range []*service.SyncResult{r.FirstSync, r.SecondSync} {
		if s == nil {
			continue
		}
		pulled += len(s.Pulled)
		pushed += len(s.Pushed)
		cancelled += len(s.Cancelled)
	}
	if r.Matching != nil {
		matched, orphaned = r.Matching.Matched, r.Matching.Orphaned
	}
	if r.Materialize != nil {
		created = len(r.Materialize.Created)
	}
	return fmt.Sprintf("pulled=%d matched=%d orphaned=%d materialized=%d pushed=%d cancelled=%d",
		pulled, matched, orphaned, created, pushed, cancelled)
}
