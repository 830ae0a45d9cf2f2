package erp

import (
	"context"
	"sort"
	"time"
)

// moduleProbe describes one optional ERP model probed at authentication.
type moduleProbe struct {
	Model       string
	Module      string
	DisplayName string
}

// optionalModels is the fixed probe list. Core models (res.users,
// ir.config_parameter, ir.model) always exist and are not probed.
var optionalModels = []moduleProbe{
	{Model: "hr.employee", Module: "hr", DisplayName: "HR"},
	{Model: "hr.contract", Module: "hr_contract", DisplayName: "HR Contract"},
	{Model: "hr.leave", Module: "hr_holidays", DisplayName: "Time Off"},
	{Model: "hr.payslip", Module: "hr_payroll", DisplayName: "Payroll"},
	{Model: "hr.attendance", Module: "hr_attendance", DisplayName: "HR Attendance"},
	{Model: "hr.applicant", Module: "hr_recruitment", DisplayName: "HR Recruitment"},
	{Model: "hr.appraisal", Module: "hr_appraisal", DisplayName: "HR Appraisal"},
	{Model: "calendar.event", Module: "calendar", DisplayName: "Calendar"},
	{Model: "project.project", Module: "project", DisplayName: "Project"},
	{Model: "project.task", Module: "project", DisplayName: "Project"},
}

// discoverModulesLocked probes ir.model for each optional model and records
// which are present. Runs once per authentication; caller holds c.mu.
// Probe failures mark the model absent rather than failing authentication.
func (c *Client) discoverModulesLocked() {
	available := make(map[string]bool, len(optionalModels))
	for _, probe := range optionalModels {
		var raw interface{}
		err := c.call(c.object, c.uid, "ir.model", "search_count",
			[]interface{}{[]interface{}{[]interface{}{"model", "=", probe.Model}}}, nil, &raw)
		if err != nil {
			c.logger.Warn("Module probe failed, treating as absent",
				"model", probe.Model, "error", err)
			available[probe.Model] = false
			continue
		}
		count, _ := toInt64(raw)
		available[probe.Model] = count > 0
	}
	c.available = available

	present := make([]string, 0, len(available))
	for m, ok := range available {
		if ok {
			present = append(present, m)
		}
	}
	sort.Strings(present)
	c.logger.Info("ERP module discovery complete", "available", present)
}

// HasModel reports whether the optional model is installed. Models not in
// the probe list are assumed present. Before the first authentication the
// answer is false for everything; callers that must not guess go through
// RequireModel, which authenticates first.
func (c *Client) HasModel(model string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.available == nil {
		return false
	}
	if ok, probed := c.available[model]; probed {
		return ok
	}
	return true
}

// AvailableModels returns the sorted list of probed models that are
// installed. Empty before the first authentication.
func (c *Client) AvailableModels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for m, ok := range c.available {
		if ok {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// RequireModel returns a ModuleMissingError when the model is not
// installed. Service layers call this before touching an optional model so
// the API can answer 503 instead of surfacing a raw ERP fault.
//
// Module availability is only known after authentication. An
// unauthenticated client authenticates here first; a failure surfaces as
// the transport error, never as a false module-missing answer.
func (c *Client) RequireModel(model string) error {
	c.mu.Lock()
	if c.available == nil {
		timeout := c.cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := c.authenticateLocked(ctx)
		cancel()
		if err != nil {
			c.mu.Unlock()
			return err
		}
	}
	installed, probed := c.available[model]
	c.mu.Unlock()

	if !probed || installed {
		return nil
	}
	for _, probe := range optionalModels {
		if probe.Model == model {
			return &ModuleMissingError{Model: model, Module: probe.Module, DisplayName: probe.DisplayName}
		}
	}
	return &ModuleMissingError{Model: model, Module: model, DisplayName: model}
}
