package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/backoffice-suite/boar/pkg/notify"
	"github.com/backoffice-suite/boar/pkg/scheduler"
)

// Job ids of the recurring monitors.
const (
	JobOverdueMonitor    = "overdue_monitor"
	JobExpiryMonitor     = "expiry_monitor"
	JobDeliveryMonitor   = "delivery_monitor"
	JobComplianceChecker = "compliance_checker"
	JobWorkloadBalance   = "workload_balance"
	JobDailyReport       = "daily_report"
	JobWeeklyReport      = "weekly_report"
)

// RegisterJobs installs the monitor catalog on the scheduler.
func (s *Service) RegisterJobs(sched *scheduler.Scheduler) error {
	jobs := []struct {
		id, name, trigger string
		handler           scheduler.JobFunc
	}{
		{JobOverdueMonitor, "Overdue task monitor", "*/15 * * * *", s.RunOverdueMonitor},
		{JobExpiryMonitor, "Contract expiry monitor", "0 7 * * *", s.RunExpiryMonitor},
		{JobDeliveryMonitor, "Delivery milestone monitor", "@every 6h", s.RunDeliveryMonitor},
		{JobComplianceChecker, "Contract compliance checker", "0 8 * * 1", s.RunComplianceChecker},
		{JobWorkloadBalance, "Workload balance monitor", "0 * * * *", s.RunWorkloadMonitor},
		{JobDailyReport, "Daily operations report", "0 6 * * *", s.RunDailyReport},
		{JobWeeklyReport, "Weekly operations report", "0 7 * * 1", s.RunWeeklyReport},
	}
	for _, j := range jobs {
		if err := sched.Register(j.id, j.name, j.trigger, j.handler); err != nil {
			return err
		}
	}
	return nil
}

// RunOverdueMonitor publishes a task.overdue event per overdue task, with
// a per-assignee email leg.
func (s *Service) RunOverdueMonitor(ctx context.Context) error {
	result, err := s.OverdueTasks(ctx)
	if err != nil {
		return err
	}
	emails := s.userEmails(ctx, assigneeIDs(result.Tasks))
	for _, task := range result.Tasks {
		subject := fmt.Sprintf("Task overdue: %s", task.Name)
		body := fmt.Sprintf("Task %q (%s) is %d day(s) past its %s deadline. Severity: %s.",
			task.Name, task.Project, task.DaysOverdue, task.Deadline, task.Severity)
		s.notifier.Publish(ctx, notify.EventTaskOverdue, asMap(task), subject, body, emails[task.AssigneeID])
	}
	return nil
}

// RunExpiryMonitor publishes contract.expiring and contract.expired events.
func (s *Service) RunExpiryMonitor(ctx context.Context) error {
	result, err := s.ContractExpiry(ctx)
	if err != nil {
		return err
	}
	for _, c := range result.Expiring {
		s.notifier.Publish(ctx, notify.EventContractExpiring, asMap(c), "", "")
	}
	for _, c := range result.Expired {
		s.notifier.Publish(ctx, notify.EventContractExpired, asMap(c), "", "")
	}
	return nil
}

// RunDeliveryMonitor publishes milestone.upcoming and milestone.overdue
// events.
func (s *Service) RunDeliveryMonitor(ctx context.Context) error {
	result, err := s.Milestones(ctx)
	if err != nil {
		return err
	}
	for _, m := range result.Upcoming {
		s.notifier.Publish(ctx, notify.EventMilestoneUpcoming, asMap(m), "", "")
	}
	for _, m := range result.Overdue {
		s.notifier.Publish(ctx, notify.EventMilestoneOverdue, asMap(m), "", "")
	}
	return nil
}

// RunComplianceChecker publishes a compliance.alert per contract under
// the threshold.
func (s *Service) RunComplianceChecker(ctx context.Context) error {
	result, err := s.Compliance(ctx)
	if err != nil {
		return err
	}
	for _, alert := range result.Alerts {
		s.notifier.Publish(ctx, notify.EventComplianceAlert, asMap(alert), "", "")
	}
	return nil
}

// RunWorkloadMonitor raises a manager alert when work is spread too
// unevenly.
func (s *Service) RunWorkloadMonitor(ctx context.Context) error {
	result, err := s.Workload(ctx)
	if err != nil {
		return err
	}
	if !result.AlertNeeded {
		return nil
	}
	subject := "Workload imbalance alert"
	body := fmt.Sprintf("Balance score %.0f with %d overloaded employee(s). %s",
		result.BalanceScore, result.Overloaded, result.Summary)
	s.notifier.Publish(ctx, "alert.workload_imbalance", asMap(result), subject, body, s.managerEmails...)
	return nil
}

// RunDailyReport generates the daily artifact and announces it.
func (s *Service) RunDailyReport(ctx context.Context) error {
	artifact, err := s.DailyReport(ctx)
	if err != nil {
		return err
	}
	s.announceReport(ctx, artifact)
	return nil
}

// RunWeeklyReport generates the weekly artifact and announces it.
func (s *Service) RunWeeklyReport(ctx context.Context) error {
	artifact, err := s.WeeklyReport(ctx)
	if err != nil {
		return err
	}
	s.announceReport(ctx, artifact)
	return nil
}

func (s *Service) announceReport(ctx context.Context, artifact *ReportArtifact) {
	subject := fmt.Sprintf("%s operations report ready (%s)", artifact.Type, artifact.Period)
	s.notifier.Publish(ctx, notify.EventReportReady, map[string]interface{}{
		"report_id": artifact.ID,
		"type":      artifact.Type,
		"period":    artifact.Period,
		"summary":   artifact.Summary,
	}, subject, artifact.Summary, s.managerEmails...)
}

// userEmails resolves res.users email addresses for assignee ids.
func (s *Service) userEmails(ctx context.Context, ids []int64) map[int64]string {
	emails := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return emails
	}
	idList := make([]interface{}, len(ids))
	for i, id := range ids {
		idList[i] = id
	}
	records, err := s.gateway.SearchRead(ctx, "res.users",
		[]interface{}{[]interface{}{"id", "in", idList}},
		[]string{"id", "email"}, nil)
	if err != nil {
		s.logger.Warn("Failed to resolve user emails", "error", err)
		return emails
	}
	for _, rec := range records {
		emails[rec.Int("id")] = rec.Str("email")
	}
	return emails
}

func assigneeIDs(tasks []OverdueTask) []int64 {
	seen := map[int64]struct{}{}
	for _, t := range tasks {
		if t.AssigneeID != 0 {
			seen[t.AssigneeID] = struct{}{}
		}
	}
	return mapKeys(seen)
}

// asMap flattens a typed fact into the generic event payload shape.
func asMap(v interface{}) map[string]interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}
