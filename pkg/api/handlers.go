package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/backoffice-suite/boar/pkg/notify"
)

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "boar",
		"status":  "running",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	erpConnected := false
	var models []string
	var version string
	if s.deps.ERP != nil {
		if err := s.deps.ERP.Authenticate(c.Request.Context()); err == nil {
			erpConnected = true
			models = s.deps.ERP.AvailableModels()
			version = s.deps.ERP.ServerVersion()
		}
	}
	status := "ok"
	if !erpConnected {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"erp": gin.H{
			"connected": erpConnected,
			"version":   version,
			"models":    models,
		},
		"ai_enabled": s.deps.LLM.Enabled(),
	})
}

type chatRequest struct {
	ExternalID string `json:"external_id" binding:"required"`
	Message    string `json:"message" binding:"required"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &ValidationError{Message: "external_id and message are required"})
		return
	}
	reply, err := s.deps.Surface.Chat(c.Request.Context(), req.ExternalID, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (s *Server) handleAnalysisOverdue(c *gin.Context) {
	result, err := s.deps.Analysis.OverdueTasks(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleAnalysisWorkload(c *gin.Context) {
	result, err := s.deps.Analysis.Workload(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleAnalysisBottlenecks(c *gin.Context) {
	result, err := s.deps.Analysis.Bottlenecks(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleAnalysisCompliance(c *gin.Context) {
	result, err := s.deps.Analysis.Compliance(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleAnalysisContracts(c *gin.Context) {
	result, err := s.deps.Analysis.ContractExpiry(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleReportList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reports": s.deps.Analysis.Reports().List()})
}

func (s *Server) handleReportGet(c *gin.Context) {
	id := c.Param("id")
	artifact := s.deps.Analysis.Reports().Get(id)
	if artifact == nil {
		respondError(c, &NotFoundError{Resource: "report", ID: id})
		return
	}
	c.JSON(http.StatusOK, artifact)
}

func (s *Server) handleReportDaily(c *gin.Context) {
	artifact, err := s.deps.Analysis.DailyReport(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, artifact)
}

func (s *Server) handleReportWeekly(c *gin.Context) {
	artifact, err := s.deps.Analysis.WeeklyReport(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, artifact)
}

func (s *Server) handleJobList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.deps.Scheduler.List()})
}

func (s *Server) handleJobTrigger(c *gin.Context) {
	id := c.Param("id")
	if err := s.deps.Scheduler.Trigger(id); err != nil {
		respondError(c, &NotFoundError{Resource: "job", ID: id})
		return
	}
	c.JSON(http.StatusOK, gin.H{"triggered": id})
}

func (s *Server) handleJobPause(c *gin.Context) {
	id := c.Param("id")
	if err := s.deps.Scheduler.Pause(id); err != nil {
		respondError(c, &NotFoundError{Resource: "job", ID: id})
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": id})
}

func (s *Server) handleJobResume(c *gin.Context) {
	id := c.Param("id")
	if err := s.deps.Scheduler.Resume(id); err != nil {
		respondError(c, &NotFoundError{Resource: "job", ID: id})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resumed": id})
}

type linkRequest struct {
	ExternalID string `json:"external_id" binding:"required"`
	Email      string `json:"email" binding:"required"`
}

func (s *Server) handleAuthLink(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &ValidationError{Message: "external_id and email are required"})
		return
	}
	result, err := s.deps.Auth.LinkStart(c.Request.Context(), req.ExternalID, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{"status": "awaiting_code", "email_sent": result.EmailSent}
	if result.DemoCode != "" {
		resp["demo_code"] = result.DemoCode
	}
	c.JSON(http.StatusOK, resp)
}

type verifyRequest struct {
	ExternalID string `json:"external_id" binding:"required"`
	Code       string `json:"code" binding:"required"`
	Username   string `json:"username"`
}

func (s *Server) handleAuthVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &ValidationError{Message: "external_id and code are required"})
		return
	}
	employeeID, err := s.deps.Auth.Verify(c.Request.Context(), req.ExternalID, req.Code, req.Username)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "bound", "employee_id": employeeID})
}

type unlinkRequest struct {
	ExternalID string `json:"external_id" binding:"required"`
}

func (s *Server) handleAuthUnlink(c *gin.Context) {
	var req unlinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &ValidationError{Message: "external_id is required"})
		return
	}
	if err := s.deps.Auth.Unlink(c.Request.Context(), req.ExternalID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unlinked"})
}

func (s *Server) handleAuthResolve(c *gin.Context) {
	externalID := c.Param("external_id")
	employeeID, err := s.deps.Auth.Resolve(c.Request.Context(), externalID)
	if err != nil {
		respondError(c, err)
		return
	}
	if employeeID == 0 {
		c.JSON(http.StatusOK, gin.H{"employee_id": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"employee_id": employeeID})
}

type assignRequest struct {
	EmployeeID int64 `json:"employee_id" binding:"required"`
}

// handleTaskAssign adds the employee's linked user to the task assignees
// and announces the assignment.
func (s *Server) handleTaskAssign(c *gin.Context) {
	taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, &ValidationError{Message: "task id must be an integer"})
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &ValidationError{Message: "employee_id is required"})
		return
	}

	ctx := c.Request.Context()
	if err := s.deps.ERP.RequireModel("project.task"); err != nil {
		respondError(c, err)
		return
	}
	employees, err := s.deps.ERP.Read(ctx, "hr.employee", []int64{req.EmployeeID},
		[]string{"name", "work_email", "user_id"})
	if err != nil {
		respondError(c, err)
		return
	}
	if len(employees) == 0 {
		respondError(c, &NotFoundError{Resource: "employee", ID: strconv.FormatInt(req.EmployeeID, 10)})
		return
	}
	userID := employees[0].Rel("user_id").ID
	if userID == 0 {
		respondError(c, &ValidationError{Message: "employee has no linked user account"})
		return
	}

	tasks, err := s.deps.ERP.Read(ctx, "project.task", []int64{taskID}, []string{"name"})
	if err != nil {
		respondError(c, err)
		return
	}
	if len(tasks) == 0 {
		respondError(c, &NotFoundError{Resource: "task", ID: strconv.FormatInt(taskID, 10)})
		return
	}

	// Odoo x2many link command: (4, id)
	if _, err := s.deps.ERP.Write(ctx, "project.task", []int64{taskID}, map[string]interface{}{
		"user_ids": []interface{}{[]interface{}{4, userID, 0}},
	}); err != nil {
		respondError(c, err)
		return
	}

	taskName := tasks[0].Str("name")
	s.deps.Notifier.Publish(ctx, notify.EventTaskAssigned, map[string]interface{}{
		"task_id":     taskID,
		"task":        taskName,
		"employee_id": req.EmployeeID,
		"employee":    employees[0].Str("name"),
	}, "New task assigned: "+taskName,
		"You have been assigned the task \""+taskName+"\".",
		employees[0].Str("work_email"))

	c.JSON(http.StatusOK, gin.H{"task_id": taskID, "assigned_to": req.EmployeeID})
}
