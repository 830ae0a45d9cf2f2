package analysis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Report types and periods.
const (
	ReportDaily  = "daily"
	ReportWeekly = "weekly"
)

// ReportArtifact is one generated report. Held in process memory only.
type ReportArtifact struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Period      string                 `json:"period"`
	Facts       map[string]interface{} `json:"facts"`
	Insights    map[string]interface{} `json:"insights,omitempty"`
	Summary     string                 `json:"summary"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// ReportStore keeps report artifacts keyed by id.
type ReportStore struct {
	mu        sync.Mutex
	artifacts map[string]*ReportArtifact
}

func NewReportStore() *ReportStore {
	return &ReportStore{artifacts: make(map[string]*ReportArtifact)}
}

func (s *ReportStore) Save(a *ReportArtifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[a.ID] = a
}

// Get returns the artifact or nil.
func (s *ReportStore) Get(id string) *ReportArtifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifacts[id]
}

// List returns all artifacts, newest first.
func (s *ReportStore) List() []*ReportArtifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ReportArtifact, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].GeneratedAt.After(out[j].GeneratedAt)
	})
	return out
}

// DailyReport snapshots overdue tasks and workload into one artifact.
func (s *Service) DailyReport(ctx context.Context) (*ReportArtifact, error) {
	overdue, err := s.OverdueTasks(ctx)
	if err != nil {
		return nil, err
	}
	workload, err := s.Workload(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	facts := map[string]interface{}{
		"overdue_tasks": overdue,
		"workload":      workload,
	}
	fallback := fmt.Sprintf("Daily report: %d overdue tasks, balance score %.0f.",
		overdue.Total, workload.BalanceScore)
	insights, summary := s.insights(ctx,
		s.envelope("daily_report", facts),
		"Write a short daily operations briefing from these facts.",
		"You are an operations chief of staff. Respond with a JSON object containing \"summary\" (string) and \"highlights\" (array of strings).",
		fallback)

	artifact := &ReportArtifact{
		ID:          uuid.NewString(),
		Type:        ReportDaily,
		Period:      now.Format("2006-01-02"),
		Facts:       facts,
		Insights:    insights,
		Summary:     summary,
		GeneratedAt: now,
	}
	s.reports.Save(artifact)
	return artifact, nil
}

// WeeklyReport adds contract expiry and bottleneck views on top of the
// daily facts.
func (s *Service) WeeklyReport(ctx context.Context) (*ReportArtifact, error) {
	overdue, err := s.OverdueTasks(ctx)
	if err != nil {
		return nil, err
	}
	workload, err := s.Workload(ctx)
	if err != nil {
		return nil, err
	}
	bottlenecks, err := s.Bottlenecks(ctx)
	if err != nil {
		return nil, err
	}
	expiry, err := s.ContractExpiry(ctx)
	if err != nil {
		// contracts are an optional module; the report still covers tasks
		s.logger.Warn("Weekly report without contract data", "error", err)
		expiry = nil
	}

	now := s.now().UTC()
	year, week := now.ISOWeek()
	facts := map[string]interface{}{
		"overdue_tasks": overdue,
		"workload":      workload,
		"bottlenecks":   bottlenecks,
	}
	if expiry != nil {
		facts["contract_expiry"] = expiry
	}
	fallback := fmt.Sprintf("Weekly report: %d overdue tasks, %d open tasks, balance score %.0f.",
		overdue.Total, bottlenecks.OpenTasks, workload.BalanceScore)
	insights, summary := s.insights(ctx,
		s.envelope("weekly_report", facts),
		"Write a weekly operations review from these facts, covering delivery, workload and contracts.",
		"You are an operations chief of staff. Respond with a JSON object containing \"summary\" (string) and \"highlights\" (array of strings).",
		fallback)

	artifact := &ReportArtifact{
		ID:          uuid.NewString(),
		Type:        ReportWeekly,
		Period:      fmt.Sprintf("%d-W%02d", year, week),
		Facts:       facts,
		Insights:    insights,
		Summary:     summary,
		GeneratedAt: now,
	}
	s.reports.Save(artifact)
	return artifact, nil
}
