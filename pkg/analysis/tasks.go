package analysis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/backoffice-suite/boar/pkg/erp"
)

const taskFetchLimit = 500

// OverdueTask is one task past its deadline.
type OverdueTask struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Project     string `json:"project"`
	Assignee    string `json:"assignee"`
	AssigneeID  int64  `json:"assignee_id,omitempty"`
	Deadline    string `json:"deadline"`
	DaysOverdue int    `json:"days_overdue"`
	Severity    string `json:"severity"`
}

// OverdueResult is the overdue-tasks pipeline output.
type OverdueResult struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Total       int                    `json:"total"`
	BySeverity  map[string]int         `json:"by_severity"`
	Tasks       []OverdueTask          `json:"tasks"`
	Insights    map[string]interface{} `json:"insights,omitempty"`
	Summary     string                 `json:"summary"`
}

// OverdueTasks gathers open tasks past their deadline and ranks them by
// severity.
func (s *Service) OverdueTasks(ctx context.Context) (*OverdueResult, error) {
	if err := s.gateway.RequireModel("project.task"); err != nil {
		return nil, err
	}

	today := s.today()
	records, err := s.gateway.SearchRead(ctx, "project.task",
		[]interface{}{
			[]interface{}{"date_deadline", "<", today.Format(erp.DateLayout)},
			[]interface{}{"is_closed", "=", false},
		},
		[]string{"id", "name", "date_deadline", "project_id", "user_ids"},
		&erp.SearchOptions{Limit: taskFetchLimit, Order: "date_deadline asc"})
	if err != nil {
		return nil, err
	}

	result := &OverdueResult{
		GeneratedAt: s.now().UTC(),
		BySeverity:  map[string]int{},
		Tasks:       make([]OverdueTask, 0, len(records)),
	}
	seenAssignees := map[int64]struct{}{}
	for _, rec := range records {
		if ids := rec.Rels("user_ids"); len(ids) > 0 {
			seenAssignees[ids[0]] = struct{}{}
		}
	}
	names := s.userNames(ctx, mapKeys(seenAssignees))
	for _, rec := range records {
		deadline := rec.Date("date_deadline")
		if deadline.IsZero() {
			continue
		}
		days := daysBetween(deadline, today)
		task := OverdueTask{
			ID:          rec.Int("id"),
			Name:        rec.Str("name"),
			Project:     rec.Rel("project_id").Name,
			Deadline:    deadline.Format(erp.DateLayout),
			DaysOverdue: days,
			Severity:    OverdueSeverity(days),
		}
		if ids := rec.Rels("user_ids"); len(ids) > 0 {
			task.AssigneeID = ids[0]
			task.Assignee = names[ids[0]]
		}
		result.Tasks = append(result.Tasks, task)
		result.BySeverity[task.Severity]++
	}
	result.Total = len(result.Tasks)
	sortTasksBySeverity(result.Tasks)

	fallback := fmt.Sprintf("%d overdue tasks (%d critical, %d high). Oldest deadlines need attention first.",
		result.Total, result.BySeverity[SeverityCritical], result.BySeverity[SeverityHigh])
	env := s.envelope("overdue_tasks", map[string]interface{}{
		"total":       result.Total,
		"by_severity": result.BySeverity,
		"tasks":       result.Tasks,
	})
	result.Insights, result.Summary = s.insights(ctx, env,
		"Analyze these overdue project tasks. Identify the riskiest items and recommend concrete next actions.",
		"You are a delivery operations analyst. Respond with a JSON object containing \"summary\" (string) and \"recommendations\" (array of strings).",
		fallback)
	return result, nil
}

var severityRank = map[string]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

func sortTasksBySeverity(tasks []OverdueTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if severityRank[tasks[i].Severity] != severityRank[tasks[j].Severity] {
			return severityRank[tasks[i].Severity] < severityRank[tasks[j].Severity]
		}
		return tasks[i].DaysOverdue > tasks[j].DaysOverdue
	})
}

// EmployeeLoad is one employee's derived workload.
type EmployeeLoad struct {
	EmployeeID     int64   `json:"employee_id"`
	Name           string  `json:"name"`
	OpenTasks      int     `json:"open_tasks"`
	RemainingHours float64 `json:"remaining_hours"`
	Utilization    float64 `json:"utilization"`
	Status         string  `json:"status"`
}

// WorkloadResult is the workload-balance pipeline output.
type WorkloadResult struct {
	GeneratedAt  time.Time              `json:"generated_at"`
	Employees    []EmployeeLoad         `json:"employees"`
	BalanceScore float64                `json:"balance_score"`
	Overloaded   int                    `json:"overloaded"`
	AlertNeeded  bool                   `json:"alert_needed"`
	Insights     map[string]interface{} `json:"insights,omitempty"`
	Summary      string                 `json:"summary"`
}

// Workload derives per-assignee utilization from open tasks and scores
// how evenly work is spread.
func (s *Service) Workload(ctx context.Context) (*WorkloadResult, error) {
	if err := s.gateway.RequireModel("project.task"); err != nil {
		return nil, err
	}

	records, err := s.gateway.SearchRead(ctx, "project.task",
		[]interface{}{[]interface{}{"is_closed", "=", false}},
		[]string{"id", "user_ids", "remaining_hours", "allocated_hours", "planned_hours"},
		&erp.SearchOptions{Limit: taskFetchLimit})
	if err != nil {
		return nil, err
	}

	type acc struct {
		tasks int
		hours float64
	}
	byAssignee := map[int64]*acc{}
	for _, rec := range records {
		ids := rec.Rels("user_ids")
		if len(ids) == 0 {
			continue
		}
		a := byAssignee[ids[0]]
		if a == nil {
			a = &acc{}
			byAssignee[ids[0]] = a
		}
		a.tasks++
		a.hours += rec.FloatOr("remaining_hours", "allocated_hours", "planned_hours")
	}

	assignees := make(map[int64]struct{}, len(byAssignee))
	for id := range byAssignee {
		assignees[id] = struct{}{}
	}
	names := s.userNames(ctx, mapKeys(assignees))

	result := &WorkloadResult{GeneratedAt: s.now().UTC()}
	utilizations := make([]float64, 0, len(byAssignee))
	for id, a := range byAssignee {
		u := Utilization(a.hours, DefaultWeeklyCapacity)
		load := EmployeeLoad{
			EmployeeID:     id,
			Name:           names[id],
			OpenTasks:      a.tasks,
			RemainingHours: a.hours,
			Utilization:    u,
			Status:         UtilizationStatus(u),
		}
		if load.Status == StatusOverloaded {
			result.Overloaded++
		}
		result.Employees = append(result.Employees, load)
		utilizations = append(utilizations, u)
	}
	sort.Slice(result.Employees, func(i, j int) bool {
		return result.Employees[i].Utilization > result.Employees[j].Utilization
	})
	result.BalanceScore = BalanceScore(utilizations)
	result.AlertNeeded = WorkloadAlertNeeded(result.BalanceScore, result.Overloaded)

	fallback := fmt.Sprintf("Balance score %.0f with %d overloaded of %d employees.",
		result.BalanceScore, result.Overloaded, len(result.Employees))
	env := s.envelope("workload_balance", map[string]interface{}{
		"employees":     result.Employees,
		"balance_score": result.BalanceScore,
		"overloaded":    result.Overloaded,
	})
	result.Insights, result.Summary = s.insights(ctx, env,
		"Assess this team workload distribution and suggest rebalancing moves.",
		"You are a resource planning analyst. Respond with a JSON object containing \"summary\" (string) and \"recommendations\" (array of strings).",
		fallback)
	return result, nil
}

// StageCount is one pipeline stage with its share of open tasks.
type StageCount struct {
	StageID    int64   `json:"stage_id"`
	Stage      string  `json:"stage"`
	Tasks      int     `json:"tasks"`
	Share      float64 `json:"share"`
	Bottleneck bool    `json:"bottleneck"`
}

// BottleneckResult is the stage-bottleneck pipeline output.
type BottleneckResult struct {
	GeneratedAt    time.Time              `json:"generated_at"`
	OpenTasks      int                    `json:"open_tasks"`
	BlockedTasks   int                    `json:"blocked_tasks"`
	BlockedConcern bool                   `json:"blocked_concern"`
	Stages         []StageCount           `json:"stages"`
	Insights       map[string]interface{} `json:"insights,omitempty"`
	Summary        string                 `json:"summary"`
}

// Bottlenecks groups open tasks by stage and flags congestion.
func (s *Service) Bottlenecks(ctx context.Context) (*BottleneckResult, error) {
	if err := s.gateway.RequireModel("project.task"); err != nil {
		return nil, err
	}

	records, err := s.gateway.SearchRead(ctx, "project.task",
		[]interface{}{[]interface{}{"is_closed", "=", false}},
		[]string{"id", "stage_id", "kanban_state"},
		&erp.SearchOptions{Limit: taskFetchLimit})
	if err != nil {
		return nil, err
	}

	result := &BottleneckResult{GeneratedAt: s.now().UTC(), OpenTasks: len(records)}
	type acc struct {
		name  string
		tasks int
	}
	byStage := map[int64]*acc{}
	for _, rec := range records {
		if rec.Str("kanban_state") == "blocked" {
			result.BlockedTasks++
		}
		stage := rec.Rel("stage_id")
		if !stage.Valid {
			continue
		}
		a := byStage[stage.ID]
		if a == nil {
			a = &acc{name: stage.Name}
			byStage[stage.ID] = a
		}
		a.tasks++
	}
	result.BlockedConcern = BlockedRatioConcerning(result.BlockedTasks, result.OpenTasks)

	for id, a := range byStage {
		sc := StageCount{
			StageID:    id,
			Stage:      a.name,
			Tasks:      a.tasks,
			Bottleneck: IsBottleneck(a.tasks, result.OpenTasks),
		}
		if result.OpenTasks > 0 {
			sc.Share = float64(a.tasks) / float64(result.OpenTasks) * 100
		}
		result.Stages = append(result.Stages, sc)
	}
	sort.Slice(result.Stages, func(i, j int) bool {
		return result.Stages[i].Tasks > result.Stages[j].Tasks
	})

	bottlenecks := 0
	for _, sc := range result.Stages {
		if sc.Bottleneck {
			bottlenecks++
		}
	}
	fallback := fmt.Sprintf("%d open tasks across %d stages; %d bottleneck stage(s), %d blocked tasks.",
		result.OpenTasks, len(result.Stages), bottlenecks, result.BlockedTasks)
	env := s.envelope("stage_bottleneck", map[string]interface{}{
		"open_tasks":    result.OpenTasks,
		"blocked_tasks": result.BlockedTasks,
		"stages":        result.Stages,
	})
	result.Insights, result.Summary = s.insights(ctx, env,
		"Analyze this kanban stage distribution. Explain where work is piling up and why that might be.",
		"You are a process improvement analyst. Respond with a JSON object containing \"summary\" (string) and \"recommendations\" (array of strings).",
		fallback)
	return result, nil
}
