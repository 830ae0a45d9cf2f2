package otp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	params map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{params: make(map[string]string)}
}

func (s *fakeStore) GetParam(_ context.Context, key string) (string, error) {
	return s.params[key], nil
}

func (s *fakeStore) SetParam(_ context.Context, key, value string) error {
	s.params[key] = value
	return nil
}

func (s *fakeStore) DeleteParam(_ context.Context, key string) error {
	delete(s.params, key)
	return nil
}

type fakeDirectory struct {
	byEmail map[string]int64
}

func (d *fakeDirectory) FindByWorkEmail(_ context.Context, email string) (int64, string, error) {
	id, ok := d.byEmail[email]
	if !ok {
		return 0, "", nil
	}
	return id, "Test Employee", nil
}

type fakeMemory struct {
	cleared []string
}

func (m *fakeMemory) Clear(externalID string) {
	m.cleared = append(m.cleared, externalID)
}

func newTestAuthenticator(t *testing.T) (*Authenticator, *fakeStore, *fakeMemory) {
	t.Helper()
	store := newFakeStore()
	memory := &fakeMemory{}
	dir := &fakeDirectory{byEmail: map[string]int64{"jane@example.com": 42}}
	a := New(store, dir, nil, memory, false)
	return a, store, memory
}

func TestLinkVerifyResolveUnlink(t *testing.T) {
	ctx := context.Background()
	a, store, memory := newTestAuthenticator(t)

	_, err := a.LinkStart(ctx, "7777777", "jane@example.com")
	require.NoError(t, err)

	session, ok := a.PendingSession("7777777")
	require.True(t, ok)
	assert.Len(t, session.Code, 6)
	assert.Equal(t, int64(42), session.EmployeeID)
	assert.Equal(t, 3, session.AttemptsRemaining)

	employeeID, err := a.Verify(ctx, "7777777", session.Code, "jane_d")
	require.NoError(t, err)
	assert.Equal(t, int64(42), employeeID)
	assert.Equal(t, "42|jane_d", store.params["telegram_link_7777777"])

	_, ok = a.PendingSession("7777777")
	assert.False(t, ok, "session must be consumed on success")

	resolved, err := a.Resolve(ctx, "7777777")
	require.NoError(t, err)
	assert.Equal(t, int64(42), resolved)

	require.NoError(t, a.Unlink(ctx, "7777777"))
	resolved, err = a.Resolve(ctx, "7777777")
	require.NoError(t, err)
	assert.Zero(t, resolved)
	assert.Equal(t, []string{"7777777"}, memory.cleared)
}

func TestVerifyLockoutAfterThreeFailures(t *testing.T) {
	ctx := context.Background()
	a, store, _ := newTestAuthenticator(t)

	_, err := a.LinkStart(ctx, "55", "jane@example.com")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = a.Verify(ctx, "55", "000000", "u")
		assert.ErrorIs(t, err, ErrInvalidCode)
	}
	_, err = a.Verify(ctx, "55", "000000", "u")
	assert.ErrorIs(t, err, ErrExpired, "third failure exhausts attempts")

	// session is gone: even the correct code is now rejected
	_, err = a.Verify(ctx, "55", "123456", "u")
	assert.ErrorIs(t, err, ErrExpired)
	assert.Empty(t, store.params)
}

func TestVerifyExpiredSession(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestAuthenticator(t)

	_, err := a.LinkStart(ctx, "9", "jane@example.com")
	require.NoError(t, err)
	session, _ := a.PendingSession("9")

	a.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	_, err = a.Verify(ctx, "9", session.Code, "u")
	assert.ErrorIs(t, err, ErrExpired)
}

func TestLinkStartRefusedWhenBound(t *testing.T) {
	ctx := context.Background()
	a, store, _ := newTestAuthenticator(t)
	store.params["telegram_link_7"] = "42|jane_d"

	_, err := a.LinkStart(ctx, "7", "jane@example.com")
	assert.ErrorIs(t, err, ErrAlreadyLinked)
}

func TestLinkStartUnknownEmail(t *testing.T) {
	a, _, _ := newTestAuthenticator(t)
	_, err := a.LinkStart(context.Background(), "7", "nobody@example.com")
	assert.ErrorIs(t, err, ErrEmployeeNotFound)
}

func TestUnlinkUnboundIsNoOp(t *testing.T) {
	a, _, _ := newTestAuthenticator(t)
	assert.NoError(t, a.Unlink(context.Background(), "404"))
}

func TestResolveMalformedBinding(t *testing.T) {
	a, store, _ := newTestAuthenticator(t)
	store.params["telegram_link_3"] = "not-a-number|x"

	id, err := a.Resolve(context.Background(), "3")
	require.NoError(t, err)
	assert.Zero(t, id)
}
