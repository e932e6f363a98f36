package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"salva/internal/model"
	"salva/internal/service"
)

var (
	templateUser  string
	templateInput service.TemplateInput
	templateEnums  struct {
		pattern    string
		preference string
	}
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage recurring task templates",
}

var templateAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a recurring template",
	Example: `  salva template add "Sport" -u ana@example.com --pattern weekly --days 1,3 --at 18:00 --duration 60
  salva template add "Piano" -u ana@example.com --pattern custom --rrule "FREQ=WEEKLY;BYDAY=TU"`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()
		user, err := a.userByEmail(ctx, templateUser)
		if err != nil {
			return err
		}
		input := templateInput
		input.Title = args[0]
		input.Pattern = model.RecurrencePattern(templateEnums.pattern)
		input.TimePreference = model.TimePreference(templateEnums.preference)

		// Templates never touch the calendar directly.
		tmpl, err := service.NewTaskService(a.templates, a.instances, nil).CreateTemplate(ctx, user, input)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created template %d %q (%s)\n", tmpl.ID, tmpl.Title, tmpl.RecurrencePattern)
		return nil
	}),
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active templates",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		ctx := cmd.Context()
		user, err := a.userByEmail(ctx, templateUser)
		if err != nil {
			return err
		}
		templates, err := service.NewTaskService(a.templates, a.instances, nil).ListTemplates(ctx, user)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, t := range templates {
			rec := t.Recurrence()
			fmt.Fprintf(out, "%d\t%s\t%s\tdays=%v at=%s rrule=%q\tinstances=%d\n",
				t.ID, t.Title, t.RecurrencePattern, rec.Days, rec.Time, rec.RRule, t.InstanceCount)
		}
		return nil
	}),
}

var templateDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Deactivate a template",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid template id %q", args[0])
		}
		user, err := a.userByEmail(ctx, templateUser)
		if err != nil {
			return err
		}
		if err := service.NewTaskService(a.templates, a.instances, nil).DeactivateTemplate(ctx, user, uint(id)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "template %d disabled\n", id)
		return nil
	}),
}

func init() {
	templateCmd.PersistentFlags().StringVarP(&templateUser, "user", "u", "", "owner email")

	f := templateAddCmd.Flags()
	f.StringVar(&templateInput.Description, "description", "", "free-text description")
	f.IntVar(&templateInput.Priority, "priority", 0, "priority from 1 to 5")
	f.IntVar(&templateInput.DurationMinutes, "duration", 0, "estimated duration in minutes")
	f.StringVar(&templateEnums.pattern, "pattern", string(model.RecurrenceWeekly), "none, daily, weekly, biweekly, monthly or custom")
	f.IntSliceVar(&templateInput.Days, "days", nil, "weekday offsets from the materialization day")
	f.StringVar(&templateInput.Time, "at", "", "time of day (HH:MM)")
	f.StringVar(&templateInput.RRule, "rrule", "", "RFC 5545 rule for the custom pattern")
	f.StringVar(&templateEnums.preference, "prefer", string(model.PreferAnytime), "morning, afternoon, evening or anytime")

	templateCmd.AddCommand(templateAddCmd)
	templateCmd.AddCommand(templateListCmd)
	templateCmd.AddCommand(templateDisableCmd)
}
