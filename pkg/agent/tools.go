package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/backoffice-suite/boar/pkg/erp"
)

// Unlinker detaches an external identity. Satisfied by the OTP
// authenticator.
type Unlinker interface {
	Unlink(ctx context.Context, externalID string) error
}

// Tools binds the employee-facing tool catalog to the ERP gateway.
type Tools struct {
	erp      *erp.Client
	unlinker Unlinker
}

func NewTools(client *erp.Client, unlinker Unlinker) *Tools {
	return &Tools{erp: client, unlinker: unlinker}
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

// RegisterAll installs the full catalog on the registry.
func (t *Tools) RegisterAll(r *Registry) error {
	catalog := []struct {
		name, description string
		params            map[string]interface{}
		required          []string
		handler           HandlerFunc
	}{
		{
			"get_employee_info", "Get the employee's profile: name, job title, department, contact details.",
			map[string]interface{}{
				"employee_id": prop("integer", "The employee's id"),
			},
			[]string{"employee_id"}, t.getEmployeeInfo,
		},
		{
			"get_leave_balance", "Get the employee's remaining leave days per leave type.",
			map[string]interface{}{
				"employee_id": prop("integer", "The employee's id"),
			},
			[]string{"employee_id"}, t.getLeaveBalance,
		},
		{
			"request_leave", "Submit a leave request for the employee.",
			map[string]interface{}{
				"employee_id": prop("integer", "The employee's id"),
				"leave_type":  prop("string", "Leave type name, e.g. Annual, Sick"),
				"date_from":   prop("string", "First day of leave, YYYY-MM-DD"),
				"date_to":     prop("string", "Last day of leave, YYYY-MM-DD"),
				"reason":      prop("string", "Optional reason for the request"),
			},
			[]string{"employee_id", "leave_type", "date_from", "date_to"}, t.requestLeave,
		},
		{
			"get_payslips", "Get the employee's most recent payslips.",
			map[string]interface{}{
				"employee_id": prop("integer", "The employee's id"),
				"limit":       prop("integer", "How many payslips to return, default 3"),
			},
			[]string{"employee_id"}, t.getPayslips,
		},
		{
			"get_attendance", "Get the employee's attendance records for recent days.",
			map[string]interface{}{
				"employee_id": prop("integer", "The employee's id"),
				"days":        prop("integer", "How many days back to look, default 7"),
			},
			[]string{"employee_id"}, t.getAttendance,
		},
		{
			"get_my_tasks", "List the employee's open project tasks.",
			map[string]interface{}{
				"employee_id": prop("integer", "The employee's id"),
			},
			[]string{"employee_id"}, t.getMyTasks,
		},
		{
			"get_task_details", "Get full details of one project task.",
			map[string]interface{}{
				"task_id": prop("integer", "The task's id"),
			},
			[]string{"task_id"}, t.getTaskDetails,
		},
		{
			"company_policy", "Look up a company policy by topic, e.g. leave, overtime, remote work.",
			map[string]interface{}{
				"topic": prop("string", "Policy topic to look up"),
			},
			[]string{"topic"}, t.companyPolicy,
		},
		{
			"unlink_account", "Disconnect this chat from the employee account. Only call when the user explicitly asks.",
			map[string]interface{}{
				"external_id": prop("string", "The chat identity to disconnect"),
			},
			[]string{"external_id"}, t.unlinkAccount,
		},
	}
	for _, c := range catalog {
		if err := r.Register(c.name, c.description, c.params, c.required, c.handler); err != nil {
			return err
		}
	}
	return nil
}

func argInt(args map[string]interface{}, key string, fallback int64) int64 {
	switch v := args[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return fallback
	}
}

func argStr(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func (t *Tools) getEmployeeInfo(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if err := t.erp.RequireModel("hr.employee"); err != nil {
		return nil, err
	}
	id := argInt(args, "employee_id", 0)
	records, err := t.erp.Read(ctx, "hr.employee", []int64{id},
		[]string{"name", "job_title", "department_id", "work_email", "work_phone", "parent_id"})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("employee %d not found", id)
	}
	rec := records[0]
	return map[string]interface{}{
		"id":         id,
		"name":       rec.Str("name"),
		"job_title":  rec.Str("job_title"),
		"department": rec.Rel("department_id").Name,
		"work_email": rec.Str("work_email"),
		"work_phone": rec.Str("work_phone"),
		"manager":    rec.Rel("parent_id").Name,
	}, nil
}

func (t *Tools) getLeaveBalance(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if err := t.erp.RequireModel("hr.leave"); err != nil {
		return nil, err
	}
	id := argInt(args, "employee_id", 0)

	allocations, err := t.erp.SearchRead(ctx, "hr.leave.allocation",
		[]interface{}{
			[]interface{}{"employee_id", "=", id},
			[]interface{}{"state", "=", "validate"},
		},
		[]string{"holiday_status_id", "number_of_days"}, nil)
	if err != nil {
		return nil, err
	}
	taken, err := t.erp.SearchRead(ctx, "hr.leave",
		[]interface{}{
			[]interface{}{"employee_id", "=", id},
			[]interface{}{"state", "=", "validate"},
		},
		[]string{"holiday_status_id", "number_of_days"}, nil)
	if err != nil {
		return nil, err
	}

	type balance struct {
		Type      string  `json:"type"`
		Allocated float64 `json:"allocated"`
		Taken     float64 `json:"taken"`
		Remaining float64 `json:"remaining"`
	}
	byType := map[int64]*balance{}
	for _, rec := range allocations {
		rel := rec.Rel("holiday_status_id")
		b := byType[rel.ID]
		if b == nil {
			b = &balance{Type: rel.Name}
			byType[rel.ID] = b
		}
		b.Allocated += rec.Float("number_of_days")
	}
	for _, rec := range taken {
		rel := rec.Rel("holiday_status_id")
		b := byType[rel.ID]
		if b == nil {
			b = &balance{Type: rel.Name}
			byType[rel.ID] = b
		}
		b.Taken += rec.Float("number_of_days")
	}
	balances := make([]balance, 0, len(byType))
	for _, b := range byType {
		b.Remaining = b.Allocated - b.Taken
		balances = append(balances, *b)
	}
	return map[string]interface{}{"employee_id": id, "balances": balances}, nil
}

func (t *Tools) requestLeave(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if err := t.erp.RequireModel("hr.leave"); err != nil {
		return nil, err
	}
	id := argInt(args, "employee_id", 0)
	leaveType := argStr(args, "leave_type")

	types, err := t.erp.SearchRead(ctx, "hr.leave.type",
		[]interface{}{[]interface{}{"name", "ilike", leaveType}},
		[]string{"id", "name"}, &erp.SearchOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("unknown leave type %q", leaveType)
	}

	values := map[string]interface{}{
		"employee_id":       id,
		"holiday_status_id": types[0].Int("id"),
		"request_date_from": argStr(args, "date_from"),
		"request_date_to":   argStr(args, "date_to"),
	}
	if reason := argStr(args, "reason"); reason != "" {
		values["name"] = reason
	}
	leaveID, err := t.erp.Create(ctx, "hr.leave", values)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"leave_id":   leaveID,
		"leave_type": types[0].Str("name"),
		"date_from":  argStr(args, "date_from"),
		"date_to":    argStr(args, "date_to"),
		"state":      "submitted",
	}, nil
}

func (t *Tools) getPayslips(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if err := t.erp.RequireModel("hr.payslip"); err != nil {
		return nil, err
	}
	id := argInt(args, "employee_id", 0)
	limit := int(argInt(args, "limit", 3))

	records, err := t.erp.SearchRead(ctx, "hr.payslip",
		[]interface{}{[]interface{}{"employee_id", "=", id}},
		[]string{"name", "date_from", "date_to", "state", "net_wage"},
		&erp.SearchOptions{Limit: limit, Order: "date_to desc"})
	if err != nil {
		return nil, err
	}
	slips := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		slips = append(slips, map[string]interface{}{
			"name":      rec.Str("name"),
			"date_from": rec.Str("date_from"),
			"date_to":   rec.Str("date_to"),
			"state":     rec.Str("state"),
			"net_wage":  rec.Float("net_wage"),
		})
	}
	return map[string]interface{}{"employee_id": id, "payslips": slips}, nil
}

func (t *Tools) getAttendance(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if err := t.erp.RequireModel("hr.attendance"); err != nil {
		return nil, err
	}
	id := argInt(args, "employee_id", 0)
	days := argInt(args, "days", 7)
	since := time.Now().UTC().AddDate(0, 0, -int(days))

	records, err := t.erp.SearchRead(ctx, "hr.attendance",
		[]interface{}{
			[]interface{}{"employee_id", "=", id},
			[]interface{}{"check_in", ">=", since.Format(erp.DateTimeLayout)},
		},
		[]string{"check_in", "check_out", "worked_hours"},
		&erp.SearchOptions{Order: "check_in desc"})
	if err != nil {
		return nil, err
	}
	entries := make([]map[string]interface{}, 0, len(records))
	var totalHours float64
	for _, rec := range records {
		entries = append(entries, map[string]interface{}{
			"check_in":     rec.Str("check_in"),
			"check_out":    rec.Str("check_out"),
			"worked_hours": rec.Float("worked_hours"),
		})
		totalHours += rec.Float("worked_hours")
	}
	return map[string]interface{}{
		"employee_id": id,
		"days":        days,
		"total_hours": totalHours,
		"entries":     entries,
	}, nil
}

// getMyTasks maps the employee to its linked user, then lists open tasks.
func (t *Tools) getMyTasks(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if err := t.erp.RequireModel("project.task"); err != nil {
		return nil, err
	}
	id := argInt(args, "employee_id", 0)

	employees, err := t.erp.Read(ctx, "hr.employee", []int64{id}, []string{"user_id"})
	if err != nil {
		return nil, err
	}
	if len(employees) == 0 {
		return nil, fmt.Errorf("employee %d not found", id)
	}
	userID := employees[0].Rel("user_id").ID
	if userID == 0 {
		return map[string]interface{}{"employee_id": id, "tasks": []interface{}{}}, nil
	}

	records, err := t.erp.SearchRead(ctx, "project.task",
		[]interface{}{
			[]interface{}{"user_ids", "in", []interface{}{userID}},
			[]interface{}{"is_closed", "=", false},
		},
		[]string{"id", "name", "project_id", "date_deadline", "stage_id", "priority"},
		&erp.SearchOptions{Order: "date_deadline asc"})
	if err != nil {
		return nil, err
	}
	tasks := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		tasks = append(tasks, map[string]interface{}{
			"id":       rec.Int("id"),
			"name":     rec.Str("name"),
			"project":  rec.Rel("project_id").Name,
			"deadline": rec.Str("date_deadline"),
			"stage":    rec.Rel("stage_id").Name,
			"priority": rec.Str("priority"),
		})
	}
	return map[string]interface{}{"employee_id": id, "tasks": tasks}, nil
}

func (t *Tools) getTaskDetails(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if err := t.erp.RequireModel("project.task"); err != nil {
		return nil, err
	}
	id := argInt(args, "task_id", 0)
	records, err := t.erp.Read(ctx, "project.task", []int64{id},
		[]string{"name", "description", "project_id", "stage_id", "date_deadline", "kanban_state", "priority", "user_ids"})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("task %d not found", id)
	}
	rec := records[0]
	return map[string]interface{}{
		"id":           id,
		"name":         rec.Str("name"),
		"description":  rec.Str("description"),
		"project":      rec.Rel("project_id").Name,
		"stage":        rec.Rel("stage_id").Name,
		"deadline":     rec.Str("date_deadline"),
		"kanban_state": rec.Str("kanban_state"),
		"priority":     rec.Str("priority"),
		"assignees":    rec.Rels("user_ids"),
	}, nil
}

// companyPolicy reads policy texts maintained as config parameters under
// company_policy_<topic>.
func (t *Tools) companyPolicy(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	topic := argStr(args, "topic")
	text, err := t.erp.GetParam(ctx, "company_policy_"+topic)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return map[string]interface{}{
			"topic": topic,
			"found": false,
			"text":  "No written policy is recorded for this topic. Please ask HR directly.",
		}, nil
	}
	return map[string]interface{}{"topic": topic, "found": true, "text": text}, nil
}

func (t *Tools) unlinkAccount(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	externalID := argStr(args, "external_id")
	if externalID == "" {
		return nil, fmt.Errorf("external_id is required")
	}
	if err := t.unlinker.Unlink(ctx, externalID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"unlinked": true}, nil
}
