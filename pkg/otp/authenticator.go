// Package otp binds external chat identities to ERP employees through
// one-time codes. Sessions live in process memory; the durable binding is
// an ir.config_parameter row owned by this package.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/backoffice-suite/boar/pkg/notify"
)

const (
	sessionTTL  = 10 * time.Minute
	maxAttempts = 3
	bindingKey  = "telegram_link_"
)

var (
	// ErrAlreadyLinked is returned by LinkStart for a bound identity.
	ErrAlreadyLinked = errors.New("identity is already linked")

	// ErrEmployeeNotFound is returned when no employee matches the email.
	ErrEmployeeNotFound = errors.New("no employee found with that email")

	// ErrInvalidCode is returned on a wrong code while attempts remain.
	ErrInvalidCode = errors.New("invalid verification code")

	// ErrExpired is returned when no usable session exists: never started,
	// expired, or attempts exhausted.
	ErrExpired = errors.New("verification session expired")
)

// Session is one pending verification.
type Session struct {
	ExternalID        string
	EmployeeID        int64
	Email             string
	Code              string
	ExpiresAt         time.Time
	AttemptsRemaining int
	CreatedAt         time.Time
}

// ConfigStore is the slice of the ERP gateway the authenticator needs for
// durable bindings.
type ConfigStore interface {
	GetParam(ctx context.Context, key string) (string, error)
	SetParam(ctx context.Context, key, value string) error
	DeleteParam(ctx context.Context, key string) error
}

// EmployeeDirectory resolves an employee by work email.
type EmployeeDirectory interface {
	FindByWorkEmail(ctx context.Context, email string) (int64, string, error)
}

// MemoryClearer drops conversation state for an identity on unlink.
type MemoryClearer interface {
	Clear(externalID string)
}

// LinkResult reports how the code was (or was not) delivered.
type LinkResult struct {
	EmailSent bool
	// DemoCode is set only in demo mode when email delivery failed.
	DemoCode string
}

// Authenticator implements the NONE → AWAITING_CODE → BOUND state machine.
type Authenticator struct {
	store     ConfigStore
	directory EmployeeDirectory
	email     *notify.EmailService
	memory    MemoryClearer
	demoMode  bool
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// New builds an authenticator. email may be nil (delivery degrades);
// memory may be nil.
func New(store ConfigStore, directory EmployeeDirectory, email *notify.EmailService, memory MemoryClearer, demoMode bool) *Authenticator {
	return &Authenticator{
		store:     store,
		directory: directory,
		email:     email,
		memory:    memory,
		demoMode:  demoMode,
		logger:    slog.Default().With("component", "otp-authenticator"),
		sessions:  make(map[string]*Session),
		now:       time.Now,
	}
}

// LinkStart begins verification for externalID against the employee whose
// work email is emailAddr. Refused when the identity is already bound.
func (a *Authenticator) LinkStart(ctx context.Context, externalID, emailAddr string) (*LinkResult, error) {
	if bound, err := a.Resolve(ctx, externalID); err != nil {
		return nil, err
	} else if bound != 0 {
		return nil, ErrAlreadyLinked
	}

	employeeID, _, err := a.directory.FindByWorkEmail(ctx, emailAddr)
	if err != nil {
		return nil, err
	}
	if employeeID == 0 {
		return nil, ErrEmployeeNotFound
	}

	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}

	now := a.now()
	a.mu.Lock()
	a.sessions[externalID] = &Session{
		ExternalID:        externalID,
		EmployeeID:        employeeID,
		Email:             emailAddr,
		Code:              code,
		ExpiresAt:         now.Add(sessionTTL),
		AttemptsRemaining: maxAttempts,
		CreatedAt:         now,
	}
	a.mu.Unlock()

	sent := a.email.Send(ctx, emailAddr,
		"Your verification code",
		fmt.Sprintf("Your account verification code is %s. It expires in 10 minutes.", code),
		"")

	result := &LinkResult{EmailSent: sent}
	if !sent {
		a.logger.Warn("OTP email delivery failed", "external_id", externalID)
		if a.demoMode {
			result.DemoCode = code
		}
	}
	return result, nil
}

// Verify checks the code for externalID. On success the session is
// consumed and the binding persisted as
// telegram_link_<externalID> = "<employee_id>|<username>".
func (a *Authenticator) Verify(ctx context.Context, externalID, code, username string) (int64, error) {
	a.mu.Lock()
	session, ok := a.sessions[externalID]
	if !ok {
		a.mu.Unlock()
		return 0, ErrExpired
	}
	if a.now().After(session.ExpiresAt) {
		delete(a.sessions, externalID)
		a.mu.Unlock()
		return 0, ErrExpired
	}

	match := subtle.ConstantTimeCompare([]byte(session.Code), []byte(code)) == 1
	if !match {
		session.AttemptsRemaining--
		if session.AttemptsRemaining <= 0 {
			delete(a.sessions, externalID)
			a.mu.Unlock()
			return 0, ErrExpired
		}
		a.mu.Unlock()
		return 0, ErrInvalidCode
	}

	employeeID := session.EmployeeID
	delete(a.sessions, externalID)
	a.mu.Unlock()

	value := fmt.Sprintf("%d|%s", employeeID, username)
	if err := a.store.SetParam(ctx, bindingKey+externalID, value); err != nil {
		return 0, err
	}
	a.logger.Info("Identity linked", "external_id", externalID, "employee_id", employeeID)
	return employeeID, nil
}

// Resolve returns the bound employee id for externalID, or 0 when unbound.
func (a *Authenticator) Resolve(ctx context.Context, externalID string) (int64, error) {
	value, err := a.store.GetParam(ctx, bindingKey+externalID)
	if err != nil {
		return 0, err
	}
	if value == "" {
		return 0, nil
	}
	first, _, _ := strings.Cut(value, "|")
	id, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, nil
	}
	return id, nil
}

// Unlink removes the binding and clears conversation memory. Unlinking an
// unbound identity is a no-op.
func (a *Authenticator) Unlink(ctx context.Context, externalID string) error {
	if err := a.store.DeleteParam(ctx, bindingKey+externalID); err != nil {
		return err
	}
	a.mu.Lock()
	delete(a.sessions, externalID)
	a.mu.Unlock()
	if a.memory != nil {
		a.memory.Clear(externalID)
	}
	a.logger.Info("Identity unlinked", "external_id", externalID)
	return nil
}

// PendingSession returns a copy of the active session for externalID, if
// any. Used by introspection and tests.
func (a *Authenticator) PendingSession(externalID string) (Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[externalID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
