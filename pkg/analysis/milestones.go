package analysis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/backoffice-suite/boar/pkg/erp"
	"github.com/backoffice-suite/boar/pkg/notify"
)

// upcomingWindowDays is how far ahead the delivery monitor looks.
const upcomingWindowDays = 7

// MilestoneFact is one unreached project milestone.
type MilestoneFact struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Project   string `json:"project"`
	Deadline  string `json:"deadline"`
	DaysUntil int    `json:"days_until"`
	Overdue   bool   `json:"overdue"`
	Urgency   string `json:"urgency"`
}

// DeliveryResult is the delivery-monitor pipeline output.
type DeliveryResult struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Upcoming    []MilestoneFact        `json:"upcoming"`
	Overdue     []MilestoneFact        `json:"overdue"`
	Insights    map[string]interface{} `json:"insights,omitempty"`
	Summary     string                 `json:"summary"`
}

// Milestones gathers unreached project milestones that are overdue or due
// within the upcoming window.
func (s *Service) Milestones(ctx context.Context) (*DeliveryResult, error) {
	if err := s.gateway.RequireModel("project.project"); err != nil {
		return nil, err
	}

	records, err := s.gateway.SearchRead(ctx, "project.milestone",
		[]interface{}{
			[]interface{}{"is_reached", "=", false},
			[]interface{}{"deadline", "!=", false},
		},
		[]string{"id", "name", "project_id", "deadline"},
		&erp.SearchOptions{Order: "deadline asc"})
	if err != nil {
		return nil, err
	}

	today := s.today()
	result := &DeliveryResult{GeneratedAt: s.now().UTC()}
	for _, rec := range records {
		deadline := rec.Date("deadline")
		if deadline.IsZero() {
			continue
		}
		daysUntil := daysBetween(today, deadline)
		fact := MilestoneFact{
			ID:        rec.Int("id"),
			Name:      rec.Str("name"),
			Project:   rec.Rel("project_id").Name,
			Deadline:  deadline.Format(erp.DateLayout),
			DaysUntil: daysUntil,
			Overdue:   daysUntil < 0,
			Urgency:   notify.MilestoneUrgency(daysUntil, daysUntil < 0),
		}
		if fact.Overdue {
			result.Overdue = append(result.Overdue, fact)
		} else if daysUntil <= upcomingWindowDays {
			result.Upcoming = append(result.Upcoming, fact)
		}
	}
	sort.Slice(result.Overdue, func(i, j int) bool {
		return result.Overdue[i].DaysUntil < result.Overdue[j].DaysUntil
	})

	fallback := fmt.Sprintf("%d milestones overdue, %d due within %d days.",
		len(result.Overdue), len(result.Upcoming), upcomingWindowDays)
	env := s.envelope("delivery_milestones", map[string]interface{}{
		"upcoming": result.Upcoming,
		"overdue":  result.Overdue,
	})
	result.Insights, result.Summary = s.insights(ctx, env,
		"Assess these project milestones and call out delivery risks.",
		"You are a delivery manager. Respond with a JSON object containing \"summary\" (string) and \"recommendations\" (array of strings).",
		fallback)
	return result, nil
}
