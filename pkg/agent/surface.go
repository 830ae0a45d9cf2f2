package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/backoffice-suite/boar/pkg/llm"
)

const (
	pleaseLinkEN = "Your chat isn't linked to an employee account yet. Send /link followed by your work email to get started."
	pleaseLinkAR = "لم يتم ربط محادثتك بحساب موظف بعد. أرسل ‎/link متبوعاً ببريدك الإلكتروني للبدء."

	systemPromptEN = `You are a helpful back-office assistant for employees. You answer questions about the employee's own HR data (profile, leave, payslips, attendance) and project tasks by calling the available tools. Be concise and factual; never invent data a tool did not return. The user's employee_id is given in their message.`
	systemPromptAR = `أنت مساعد إداري للموظفين. أجب عن أسئلة الموظف حول بياناته (الملف الشخصي، الإجازات، قسائم الراتب، الحضور) ومهام المشاريع باستخدام الأدوات المتاحة. كن موجزاً ودقيقاً ولا تختلق بيانات لم تُرجعها الأدوات. أجب باللغة العربية. رقم الموظف مذكور في الرسالة.`
)

// Resolver looks up the bound employee for an external identity.
// Satisfied by the OTP authenticator.
type Resolver interface {
	Resolve(ctx context.Context, externalID string) (int64, error)
}

// Surface is the per-user conversational entry point.
type Surface struct {
	resolver Resolver
	loop     *Loop
	logger   *slog.Logger
}

func NewSurface(resolver Resolver, loop *Loop) *Surface {
	return &Surface{
		resolver: resolver,
		loop:     loop,
		logger:   slog.Default().With("component", "agent-surface"),
	}
}

// Chat handles one user message: detect language, check the identity is
// bound, inject the employee context, and run the tool-calling loop.
func (s *Surface) Chat(ctx context.Context, externalID, message string) (string, error) {
	lang := llm.DetectLanguage(message)

	employeeID, err := s.resolver.Resolve(ctx, externalID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve identity: %w", err)
	}
	if employeeID == 0 {
		if lang == llm.LanguageArabic {
			return pleaseLinkAR, nil
		}
		return pleaseLinkEN, nil
	}

	system := systemPromptEN
	if lang == llm.LanguageArabic {
		system = systemPromptAR
	}
	defaults := map[string]interface{}{
		"employee_id": employeeID,
		"external_id": externalID,
	}
	return s.loop.Run(ctx, externalID, system, message, defaults, lang)
}
