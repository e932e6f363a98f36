package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"salva/internal/calendar"
	"salva/internal/config"
	"salva/internal/logger"
	"salva/internal/model"
	"salva/internal/ollama"
	"salva/internal/repository"
	"salva/internal/service"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "salva",
	Short: "calendar-reconciled task scheduler",
	Long: `salva keeps recurring tasks and a CalDAV calendar in step
  - materializes recurring templates into the week ahead
  - pulls calendar events and matches them to templates
  - groups unmatched events into candidate habits`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "salva.yaml", "path to the YAML config file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(orphansCmd)
}

// app holds the shared runtime built from the config file.
type app struct {
	cfg config.Config
	log *logger.Logger
	db  *gorm.DB

	users     *repository.UserRepository
	templates *repository.TemplateRepository
	instances *repository.InstanceRepository
	matches   *repository.MatchRepository
	clusters  *repository.ClusterRepository
	patterns  *repository.PatternRepository
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	db, err := repository.NewDB(cfg.Database.Driver, cfg.Database.URL, log)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	return &app{
		cfg:       cfg,
		log:       log,
		db:        db,
		users:     repository.NewUserRepository(db),
		templates: repository.NewTemplateRepository(db),
		instances: repository.NewInstanceRepository(db),
		matches:   repository.NewMatchRepository(db),
		clusters:  repository.NewClusterRepository(db),
		patterns:  repository.NewPatternRepository(db),
	}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	a.log.Sync()
}

func (a *app) weekday() time.Weekday {
	// Validate already rejected unknown names.
	d, _ := a.cfg.Weekday()
	return d
}

func (a *app) calendarSync() (*service.CalendarSync, error) {
	client, err := calendar.NewCalDAVClient(calendar.CalDAVConfig{
		URL:      a.cfg.CalDAV.URL,
		Username: a.cfg.CalDAV.Username,
		Password: a.cfg.CalDAV.Password,
		Timeout:  a.cfg.CalDAV.Timeout,
	}, a.log)
	if err != nil {
		return nil, fmt.Errorf("caldav: %w", err)
	}
	return service.NewCalendarSync(a.instances, client, a.cfg.CalDAV.Calendar, a.log), nil
}

func (a *app) cycle(sync *service.CalendarSync) *service.CycleService {
	matcher := service.NewMatcher(a.instances, a.templates, a.matches, a.log)
	materializer := service.NewMaterializer(a.templates, a.instances, a.weekday(), a.log)
	return service.NewCycleService(a.users, sync, matcher, materializer, a.cfg.CalDAV.Calendar, a.cfg.SyncWindowDays, a.log)
}

func (a *app) orphans() *service.OrphanService {
	return service.NewOrphanService(a.instances, a.templates, a.clusters, a.patterns, a.weekday(), a.log)
}

func (a *app) planner() *service.DayPlanner {
	return service.NewDayPlanner(a.users, a.instances, ollama.New(a.cfg.Ollama, a.log), a.cfg.DayStart, a.cfg.DayEnd, a.log)
}

// userByEmail resolves the --user flag shared by several commands.
func (a *app) userByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("--user is required")
	}
	return a.users.GetByEmail(ctx, email)
}

// withApp builds the runtime for one command invocation and closes it afterwards.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, args, a)
	}
}
