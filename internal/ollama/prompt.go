package ollama

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"salva/internal/service"
)

// BuildDayPrompt renders the planning prompt for one day. The prompt is in French like the rest
// of the user-facing text.
func BuildDayPrompt(pc service.PlanContext) string {
	var b strings.Builder
	b.WriteString("Tu es un assistant de productivité. Tu dois planifier la journée de l'utilisateur.\n\n")
	fmt.Fprintf(&b, "Date : %s (%s)\n\n", pc.Date, pc.Weekday)

	b.WriteString("PROGRAMME ACTUEL :\n")
	if len(pc.Events) == 0 {
		b.WriteString("  aucun\n")
	}
	for _, ev := range pc.Events {
		fmt.Fprintf(&b, "  - %q %s à %s\n", ev.Title, ev.Start, ev.End)
	}

	b.WriteString("\nCRÉNEAUX LIBRES (tu ne peux utiliser QUE ces horaires) :\n")
	b.WriteString(formatSlots(pc.FreeSlots))

	fmt.Fprintf(&b, "\nPRÉFÉRENCES :\n  - %d minutes minimum entre chaque tâche\n  - maximum %d tâches par jour\n",
		pc.Preferences.BufferBetweenTasksMinutes, pc.Preferences.MaxTasksPerDay)

	b.WriteString(`
Réponds UNIQUEMENT avec un JSON valide, sans texte avant ni après :
{"tasks": [{"title": "Nom", "start": "HH:MM", "end": "HH:MM", "description": "optionnel"}], "reasoning": "explication courte"}
Si rien n'est à planifier, réponds {"tasks": [], "reasoning": "..."}.
`)
	return b.String()
}

func formatSlots(slots []service.Interval) string {
	if len(slots) == 0 {
		return "  aucun créneau libre\n"
	}
	var b strings.Builder
	for _, s := range slots {
		lo, err1 := service.ParseClockMinutes(s.Start)
		hi, err2 := service.ParseClockMinutes(s.End)
		if err1 != nil || err2 != nil {
			fmt.Fprintf(&b, "  %s à %s\n", s.Start, s.End)
			continue
		}
		fmt.Fprintf(&b, "  %s à %s (%d minutes)\n", s.Start, s.End, hi-lo)
	}
	return b.String()
}

type rawTask struct {
	Title          string `json:"title"`
	Start          string `json:"start"`
	End            string `json:"end"`
	ScheduledStart string `json:"scheduled_start"`
	ScheduledEnd   string `json:"scheduled_end"`
	Description    string `json:"description"`
}

type rawProposal struct {
	Tasks     *[]rawTask `json:"tasks"`
	Reasoning string     `json:"reasoning"`
}

// ParseProposal extracts a proposal from model output. It strips markdown fences and
// <think> blocks, accepts "HH:MM" or RFC 3339 times, and returns nil when the text is not
// a JSON object with a tasks list.
func ParseProposal(text string) *service.Proposal {
	cleaned := stripThink(strings.TrimSpace(text))
	cleaned = stripFence(cleaned)

	var raw rawProposal
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil || raw.Tasks == nil {
		return nil
	}

	out := &service.Proposal{Reasoning: raw.Reasoning, Tasks: make([]service.PlannedEvent, 0, len(*raw.Tasks))}
	for _, t := range *raw.Tasks {
		start := firstNonEmpty(t.Start, t.ScheduledStart)
		end := firstNonEmpty(t.End, t.ScheduledEnd)
		out.Tasks = append(out.Tasks, service.PlannedEvent{
			Title:       strings.TrimSpace(t.Title),
			Start:       toClock(start),
			End:         toClock(end),
			Description: strings.TrimSpace(t.Description),
		})
	}
	return out
}

func stripThink(s string) string {
	for {
		open := strings.Index(s, "<think>")
		if open < 0 {
			return s
		}
		end := strings.Index(s[open:], "</think>")
		if end < 0 {
			return strings.TrimSpace(s[:open])
		}
		s = strings.TrimSpace(s[:open] + s[open+end+len("</think>"):])
	}
}

func stripFence(s string) string {
	if _, after, ok := strings.Cut(s, "```json"); ok {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(body)
	}
	if _, after, ok := strings.Cut(s, "```"); ok {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(body)
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// toClock reduces RFC 3339 timestamps to UTC "HH:MM"; other values pass through.
func toClock(v string) string {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return service.FormatMinutes(t.Hour()*60 + t.Minute())
	}
	return v
}
