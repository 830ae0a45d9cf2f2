package analysis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/backoffice-suite/boar/pkg/erp"
	"github.com/backoffice-suite/boar/pkg/notify"
)

// ContractFact is one contract with its derived lifecycle status.
type ContractFact struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Employee        string `json:"employee"`
	EmployeeID      int64  `json:"employee_id,omitempty"`
	EndDate         string `json:"end_date,omitempty"`
	Status          string `json:"status"`
	DaysUntilExpiry int    `json:"days_until_expiry"`
	Urgency         string `json:"urgency,omitempty"`
}

// ExpiryResult is the contract-expiry pipeline output.
type ExpiryResult struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Total       int                    `json:"total"`
	Expired     []ContractFact         `json:"expired"`
	Expiring    []ContractFact         `json:"expiring_soon"`
	Insights    map[string]interface{} `json:"insights,omitempty"`
	Summary     string                 `json:"summary"`
}

// ContractExpiry gathers running contracts and derives which are expired
// or expiring within the 30-day window.
func (s *Service) ContractExpiry(ctx context.Context) (*ExpiryResult, error) {
	if err := s.gateway.RequireModel("hr.contract"); err != nil {
		return nil, err
	}

	records, err := s.gateway.SearchRead(ctx, "hr.contract",
		[]interface{}{
			[]interface{}{"state", "=", "open"},
			[]interface{}{"date_end", "!=", false},
		},
		[]string{"id", "name", "employee_id", "date_end"},
		&erp.SearchOptions{Order: "date_end asc"})
	if err != nil {
		return nil, err
	}

	today := s.today()
	result := &ExpiryResult{GeneratedAt: s.now().UTC(), Total: len(records)}
	for _, rec := range records {
		end := rec.Date("date_end")
		status, days := ContractStatus(end, today)
		fact := ContractFact{
			ID:              rec.Int("id"),
			Name:            rec.Str("name"),
			Employee:        rec.Rel("employee_id").Name,
			EmployeeID:      rec.Rel("employee_id").ID,
			EndDate:         end.Format(erp.DateLayout),
			Status:          status,
			DaysUntilExpiry: days,
		}
		switch status {
		case ContractExpired:
			fact.Urgency = notify.UrgencyCritical
			result.Expired = append(result.Expired, fact)
		case ContractExpiringSoon:
			fact.Urgency = notify.ContractUrgency(days)
			result.Expiring = append(result.Expiring, fact)
		}
	}
	sort.Slice(result.Expiring, func(i, j int) bool {
		return result.Expiring[i].DaysUntilExpiry < result.Expiring[j].DaysUntilExpiry
	})

	fallback := fmt.Sprintf("%d contracts expired, %d expiring within 30 days.",
		len(result.Expired), len(result.Expiring))
	env := s.envelope("contract_expiry", map[string]interface{}{
		"expired":       result.Expired,
		"expiring_soon": result.Expiring,
	})
	result.Insights, result.Summary = s.insights(ctx, env,
		"Review these contract expirations and advise on renewal priorities.",
		"You are an HR operations analyst. Respond with a JSON object containing \"summary\" (string) and \"recommendations\" (array of strings).",
		fallback)
	return result, nil
}

// Compliance item statuses that do not count against the score.
var compliantStatuses = map[string]bool{
	"compliant":      true,
	"exempted":       true,
	"not_applicable": true,
}

// ContractCompliance is one contract's checklist score.
type ContractCompliance struct {
	ContractID int64    `json:"contract_id"`
	Name       string   `json:"name"`
	Employee   string   `json:"employee"`
	Items      int      `json:"items"`
	OKItems    int      `json:"ok_items"`
	Score      float64  `json:"score"`
	Violations []string `json:"violations,omitempty"`
}

// ComplianceResult is the compliance pipeline output.
type ComplianceResult struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Contracts   []ContractCompliance   `json:"contracts"`
	Alerts      []ContractCompliance   `json:"alerts"`
	Insights    map[string]interface{} `json:"insights,omitempty"`
	Summary     string                 `json:"summary"`
}

// complianceAlertScore is the score under which a contract is alerted on.
const complianceAlertScore = 80.0

// Compliance scores each running contract against its checklist items.
// Deployments without the checklist model simply score everything 100.
func (s *Service) Compliance(ctx context.Context) (*ComplianceResult, error) {
	if err := s.gateway.RequireModel("hr.contract"); err != nil {
		return nil, err
	}

	contracts, err := s.gateway.SearchRead(ctx, "hr.contract",
		[]interface{}{[]interface{}{"state", "=", "open"}},
		[]string{"id", "name", "employee_id"}, nil)
	if err != nil {
		return nil, err
	}

	items, err := s.gateway.SearchRead(ctx, "contract.compliance.item",
		[]interface{}{}, []string{"id", "name", "contract_id", "status"}, nil)
	if err != nil {
		// checklist model not installed: nothing to violate
		s.logger.Info("Compliance checklist model unavailable, scoring contracts at 100", "error", err)
		items = nil
	}

	type tally struct {
		total, ok  int
		violations []string
	}
	byContract := map[int64]*tally{}
	for _, item := range items {
		cid := item.Rel("contract_id").ID
		if cid == 0 {
			continue
		}
		t := byContract[cid]
		if t == nil {
			t = &tally{}
			byContract[cid] = t
		}
		t.total++
		if compliantStatuses[item.Str("status")] {
			t.ok++
		} else {
			t.violations = append(t.violations, item.Str("name"))
		}
	}

	result := &ComplianceResult{GeneratedAt: s.now().UTC()}
	for _, rec := range contracts {
		cc := ContractCompliance{
			ContractID: rec.Int("id"),
			Name:       rec.Str("name"),
			Employee:   rec.Rel("employee_id").Name,
		}
		if t := byContract[cc.ContractID]; t != nil {
			cc.Items = t.total
			cc.OKItems = t.ok
			cc.Violations = t.violations
		}
		cc.Score = ComplianceScore(cc.OKItems, cc.Items)
		result.Contracts = append(result.Contracts, cc)
		if cc.Score < complianceAlertScore {
			result.Alerts = append(result.Alerts, cc)
		}
	}
	sort.Slice(result.Contracts, func(i, j int) bool {
		return result.Contracts[i].Score < result.Contracts[j].Score
	})

	fallback := fmt.Sprintf("%d contracts checked, %d below the compliance threshold.",
		len(result.Contracts), len(result.Alerts))
	env := s.envelope("compliance", map[string]interface{}{
		"contracts": result.Contracts,
		"alerts":    result.Alerts,
	})
	result.Insights, result.Summary = s.insights(ctx, env,
		"Review these contract compliance scores and flag the most urgent gaps.",
		"You are a compliance analyst. Respond with a JSON object containing \"summary\" (string) and \"recommendations\" (array of strings).",
		fallback)
	return result, nil
}
