package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"salva/internal/bot"
	"salva/internal/service"
)

const jobTimeout = 10 * time.Minute

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daily cycle scheduler and the Telegram bot",
	RunE:  withApp(runDaemon),
}

func runDaemon(cmd *cobra.Command, _ []string, a *app) error {
	ctx := cmd.Context()

	sync, err := a.calendarSync()
	if err != nil {
		return err
	}
	cycle := a.cycle(sync)
	orphans := a.orphans()
	planner := a.planner()
	tasks := service.NewTaskService(a.templates, a.instances, sync)
	briefs := service.NewBriefService(a.instances, a.clusters)

	scheduler := service.NewSchedulerService(time.Local, jobTimeout, a.log)
	if _, err := scheduler.ScheduleDaily("cycle", a.cfg.CycleTime, func(ctx context.Context) error {
		return runCycleAndCluster(ctx, a, cycle, orphans)
	}); err != nil {
		return err
	}

	var telegram *bot.Bot
	if a.cfg.TelegramToken != "" {
		telegram, err = bot.New(a.cfg.TelegramToken, a.users, tasks, briefs, cycle, planner, a.log)
		if err != nil {
			return err
		}
		if _, err := scheduler.ScheduleDaily("brief", a.cfg.BriefTime, telegram.SendDailyBriefs); err != nil {
			return err
		}
	} else {
		a.log.Warn("telegram token not set, bot disabled")
	}

	scheduler.Start()
	defer scheduler.Stop()
	a.log.Info("salva started", "cycle_time", a.cfg.CycleTime, "jobs", scheduler.Entries())

	if telegram != nil {
		if err := telegram.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	} else {
		<-ctx.Done()
	}
	a.log.Info("shutdown complete")
	return nil
}

// runCycleAndCluster runs the reconciliation cycle for every user, then refreshes their orphan clusters.
func runCycleAndCluster(ctx context.Context, a *app, cycle *service.CycleService, orphans *service.OrphanService) error {
	reports, err := cycle.RunAll(ctx)
	if err != nil {
		return err
	}
	for _, r := range reports {
		clusters, err := orphans.Cluster(ctx, r.UserID)
		if err != nil {
			a.log.Error("clustering failed", "user_id", r.UserID, "error", err)
			continue
		}
		if len(clusters) > 0 {
			a.log.Info("new orphan clusters", "user_id", r.UserID, "count", len(clusters))
		}
	}
	return nil
}
