package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/datatypes"

	"salva/internal/model"
)

var (
	userTimezone string

	prefWorkStart string
	prefWorkEnd   string
	prefWorkDays  []int
	prefMaxTasks  int
	prefDuration  int
	prefBuffer    int
	prefLanguage  string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users and their preferences",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <email>",
	Short: "Create a user with default preferences",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		user := &model.User{
			Email:       strings.TrimSpace(args[0]),
			Timezone:    userTimezone,
			Preferences: datatypes.NewJSONType(model.DefaultPreferences()),
		}
		if err := a.users.Create(cmd.Context(), user); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created user %d <%s>\n", user.ID, user.Email)
		return nil
	}),
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		users, err := a.users.ListAll(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, u := range users {
			chat := "-"
			if u.TelegramChatID != nil {
				chat = fmt.Sprint(*u.TelegramChatID)
			}
			fmt.Fprintf(out, "%d\t%s\t%s\tchat=%s\t%s\n", u.ID, u.Email, u.Timezone, chat, u.Prefs())
		}
		return nil
	}),
}

var userPrefsCmd = &cobra.Command{
	Use:   "prefs <email>",
	Short: "Show or update scheduling preferences",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()
		user, err := a.users.GetByEmail(ctx, args[0])
		if err != nil {
			return err
		}
		prefs := user.Prefs()
		flags := cmd.Flags()
		updates := map[string]func(){
			"work-start": func() { prefs.WorkHoursStart = prefWorkStart },
			"work-end":   func() { prefs.WorkHoursEnd = prefWorkEnd },
			"work-days":  func() { prefs.WorkDays = prefWorkDays },
			"max-tasks":  func() { prefs.MaxTasksPerDay = prefMaxTasks },
			"duration":   func() { prefs.DefaultTaskDurationMinutes = prefDuration },
			"buffer":     func() { prefs.BufferBetweenTasksMinutes = prefBuffer },
			"language":   func() { prefs.Language = prefLanguage },
		}
		changed := false
		for name, apply := range updates {
			if flags.Changed(name) {
				apply()
				changed = true
			}
		}
		if changed {
			if prefs, err = a.users.UpdatePreferences(ctx, user.ID, prefs); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), prefs)
		return nil
	}),
}

func init() {
	userCreateCmd.Flags().StringVar(&userTimezone, "timezone", "Europe/Paris", "IANA timezone of the user")

	f := userPrefsCmd.Flags()
	f.StringVar(&prefWorkStart, "work-start", "", "start of the working day (HH:MM)")
	f.StringVar(&prefWorkEnd, "work-end", "", "end of the working day (HH:MM)")
	f.IntSliceVar(&prefWorkDays, "work-days", nil, "working weekdays, 0 is Sunday")
	f.IntVar(&prefMaxTasks, "max-tasks", 0, "maximum scheduled tasks per day")
	f.IntVar(&prefDuration, "duration", 0, "default task duration in minutes")
	f.IntVar(&prefBuffer, "buffer", 0, "buffer between tasks in minutes")
	f.StringVar(&prefLanguage, "language", "", "language code")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userPrefsCmd)
}
