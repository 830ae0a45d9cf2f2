package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/backoffice-suite/boar/pkg/erp"
	"github.com/backoffice-suite/boar/pkg/llm"
	"github.com/backoffice-suite/boar/pkg/notify"
)

// Gateway is the slice of the ERP client the pipelines read through.
type Gateway interface {
	SearchRead(ctx context.Context, model string, domain []interface{}, fields []string, opts *erp.SearchOptions) ([]erp.Record, error)
	RequireModel(model string) error
}

// Service owns the analytical pipelines. Every pipeline follows the same
// template: gather bounded ERP facts, derive metrics, ask the LLM for a
// qualitative read, and fall back to rule-based text when it cannot
// answer.
type Service struct {
	gateway       Gateway
	llm           *llm.Client
	notifier      *notify.Notifier
	reports       *ReportStore
	managerEmails []string
	logger        *slog.Logger
	now           func() time.Time
}

// NewService wires the pipelines. notifier may be nil; managerEmails
// receive report and alert mail.
func NewService(gateway Gateway, llmClient *llm.Client, notifier *notify.Notifier, managerEmails []string) *Service {
	return &Service{
		gateway:       gateway,
		llm:           llmClient,
		notifier:      notifier,
		reports:       NewReportStore(),
		managerEmails: managerEmails,
		logger:        slog.Default().With("component", "analysis"),
		now:           time.Now,
	}
}

// Reports exposes the artifact store for the HTTP surface.
func (s *Service) Reports() *ReportStore {
	return s.reports
}

// Envelope is the normalized fact bundle handed to the LLM. Built fresh
// per request; facts are live ERP reads and never cached.
type Envelope struct {
	Pipeline    string                 `json:"pipeline"`
	GeneratedAt string                 `json:"generated_at"`
	Facts       map[string]interface{} `json:"facts"`
}

func (s *Service) envelope(pipeline string, facts map[string]interface{}) Envelope {
	return Envelope{
		Pipeline:    pipeline,
		GeneratedAt: s.now().UTC().Format(time.RFC3339),
		Facts:       facts,
	}
}

// insightSchema is the contract every pipeline's LLM reply must satisfy.
var insightSchema = jsonschema.MustCompileString("insights.json", `{
	"type": "object",
	"properties": {
		"summary": {"type": "string", "minLength": 1},
		"recommendations": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["summary"]
}`)

// insights runs the LLM leg of a pipeline: schema-validated parse, one
// strict-JSON retry on a rejected reply, then the rule-based fallback. On
// any failure it returns the fallback text instead, so endpoints degrade
// rather than 500.
func (s *Service) insights(ctx context.Context, env Envelope, prompt, system, fallback string) (map[string]interface{}, string) {
	out, err := s.analyzeValidated(ctx, env, prompt, system)
	if err != nil && !errors.Is(err, llm.ErrUnavailable) {
		s.logger.Warn("LLM insight rejected, retrying with strict instruction",
			"pipeline", env.Pipeline, "error", err)
		strict := system + "\n\nYour reply MUST be a single JSON object with a non-empty \"summary\" string and an optional \"recommendations\" array of strings. Nothing else."
		out, err = s.analyzeValidated(ctx, env, prompt, strict)
	}
	if err != nil {
		s.logger.Warn("LLM insight unavailable, using rule-based fallback",
			"pipeline", env.Pipeline, "error", err)
		return nil, fallback
	}
	summary, _ := out["summary"].(string)
	return out, summary
}

func (s *Service) analyzeValidated(ctx context.Context, env Envelope, prompt, system string) (map[string]interface{}, error) {
	out, err := s.llm.AnalyzeJSON(ctx, prompt, env, system)
	if err != nil {
		return nil, err
	}
	if err := insightSchema.Validate(map[string]interface{}(out)); err != nil {
		return nil, fmt.Errorf("insight reply rejected by schema: %w", err)
	}
	return out, nil
}

func (s *Service) today() time.Time {
	return s.now().UTC().Truncate(24 * time.Hour)
}

// userNames resolves res.users display names for assignee ids. Lookup
// failures degrade to empty names; pipelines still report the ids.
func (s *Service) userNames(ctx context.Context, ids []int64) map[int64]string {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names
	}
	idList := make([]interface{}, len(ids))
	for i, id := range ids {
		idList[i] = id
	}
	records, err := s.gateway.SearchRead(ctx, "res.users",
		[]interface{}{[]interface{}{"id", "in", idList}},
		[]string{"id", "name"}, nil)
	if err != nil {
		s.logger.Warn("Failed to resolve user names", "error", err)
		return names
	}
	for _, rec := range records {
		names[rec.Int("id")] = rec.Str("name")
	}
	return names
}

func daysBetween(from, to time.Time) int {
	return int(to.Truncate(24*time.Hour).Sub(from.Truncate(24*time.Hour)).Hours() / 24)
}

func mapKeys(m map[int64]struct{}) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
