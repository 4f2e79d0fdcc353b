package session

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/infusephp/auth/internal/stores"
	"github.com/redis/go-redis/v9"
)

type fakeSession struct {
	id        string
	values    map[string]string
	destroyed int
}

func newFakeSession() *fakeSession {
	return &fakeSession{id: uuid.NewString(), values: map[string]string{}}
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *fakeSession) Set(key, value string) { s.values[key] = value }

func (s *fakeSession) Delete(key string) { delete(s.values, key) }

func (s *fakeSession) Regenerate() (string, error) {
	s.id = uuid.NewString()
	return s.id, nil
}

func (s *fakeSession) Destroy() error {
	s.destroyed++
	s.values = map[string]string{}
	s.id = uuid.NewString()
	return nil
}

type fakeRequest struct {
	ip      string
	agent   string
	params  map[string]string
	cookies map[string]string
	session *fakeSession
}

func newFakeRequest(agent string) *fakeRequest {
	return &fakeRequest{
		ip:      "10.0.0.1",
		agent:   agent,
		params:  map[string]string{},
		cookies: map[string]string{},
		session: newFakeSession(),
	}
}

func (r *fakeRequest) IP() string        { return r.ip }
func (r *fakeRequest) UserAgent() string { return r.agent }

func (r *fakeRequest) Param(name string) string { return r.params[name] }

func (r *fakeRequest) Cookie(name string) (string, bool) {
	v, ok := r.cookies[name]
	return v, ok
}

func (r *fakeRequest) Session() SessionState { return r.session }

type fakeResponse struct {
	cookies []Cookie
}

func (r *fakeResponse) SetCookie(c Cookie) { r.cookies = append(r.cookies, c) }

func (r *fakeResponse) last(name string) (Cookie, bool) {
	for i := len(r.cookies) - 1; i >= 0; i-- {
		if r.cookies[i].Name == name {
			return r.cookies[i], true
		}
	}
	return Cookie{}, false
}

type fakeResolver struct {
	byEmail map[string]int64
}

func (f fakeResolver) UserIDByEmail(_ context.Context, email string) (int64, bool, error) {
	id, ok := f.byEmail[email]
	return id, ok, nil
}

func newTestStore(t *testing.T) (*Store, *stores.PersistentSessions, *stores.ActiveSessions, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	codec, err := NewRememberCodec([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("codec: %v", err)
	}

	persistent := stores.NewPersistentSessions(rdb, "pr", []byte("fedcba9876543210fedcba9876543210"))
	registry := stores.NewActiveSessions(rdb, "as")
	resolver := fakeResolver{byEmail: map[string]int64{"ada@example.com": 7}}

	store := NewStore(Config{
		Lifetime:    time.Hour,
		RememberTTL: 90 * 24 * time.Hour,
		CookieName:  "persistent",
	}, codec, persistent, registry, resolver, time.Now)

	return store, persistent, registry, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestSignInRegistersActiveSession(t *testing.T) {
	store, _, registry, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	req := newFakeRequest("Firefox")
	res := &fakeResponse{}

	if err := store.SignIn(ctx, 7, req, res); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	valid, err := registry.IsValid(ctx, req.session.ID())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if !valid {
		t.Fatal("expected a valid registry row for the new session")
	}

	result, err := store.GetAuthenticatedUser(ctx, req, res)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result == nil || result.UserID != 7 || result.Strategy != StrategyWeb {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestSignInIdempotentForSameSubject(t *testing.T) {
	store, _, _, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	req := newFakeRequest("Firefox")
	res := &fakeResponse{}

	if err := store.SignIn(ctx, 7, req, res); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	firstID := req.session.ID()

	if err := store.SignIn(ctx, 7, req, res); err != nil {
		t.Fatalf("second sign in: %v", err)
	}
	if req.session.ID() != firstID {
		t.Fatal("idempotent sign-in must not regenerate the session id")
	}
}

func TestSignInRegeneratesOnIdentityChange(t *testing.T) {
	store, _, registry, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	req := newFakeRequest("Firefox")
	res := &fakeResponse{}

	if err := store.SignIn(ctx, -1, req, res); err != nil {
		t.Fatalf("guest sign in: %v", err)
	}
	guestID := req.session.ID()

	if err := store.SignIn(ctx, 7, req, res); err != nil {
		t.Fatalf("user sign in: %v", err)
	}
	if req.session.ID() == guestID {
		t.Fatal("identity change must regenerate the session id")
	}

	// The old registered row is retired when another registered user takes
	// over the browser session.
	userSessionID := req.session.ID()
	if err := store.SignIn(ctx, 8, req, res); err != nil {
		t.Fatalf("second user sign in: %v", err)
	}
	valid, err := registry.IsValid(ctx, userSessionID)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if valid {
		t.Fatal("previous user's registry row should be gone")
	}
}

func TestSessionRejectedOnAgentMismatch(t *testing.T) {
	store, _, _, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	req := newFakeRequest("Firefox")
	res := &fakeResponse{}
	if err := store.SignIn(ctx, 7, req, res); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	req.agent = "Chrome"
	result, err := store.GetAuthenticatedUser(ctx, req, res)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result != nil {
		t.Fatal("session bound to Firefox must be rejected for Chrome")
	}
}

func TestSessionRejectedAfterRegistryInvalidation(t *testing.T) {
	store, _, registry, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	req := newFakeRequest("Firefox")
	res := &fakeResponse{}
	if err := store.SignIn(ctx, 7, req, res); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	if err := registry.InvalidateAllForUser(ctx, 7); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	result, err := store.GetAuthenticatedUser(ctx, req, res)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result != nil {
		t.Fatal("invalidated session must not authenticate")
	}
	if req.session.destroyed == 0 {
		t.Fatal("invalidated session should be destroyed")
	}
}

func TestRememberRotationIssuesFreshToken(t *testing.T) {
	store, persistent, _, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	loginReq := newFakeRequest("Firefox")
	loginRes := &fakeResponse{}
	if err := store.SignIn(ctx, 7, loginReq, loginRes); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := store.Remember(ctx, 7, "ada@example.com", loginReq, loginRes); err != nil {
		t.Fatalf("remember: %v", err)
	}

	c1, ok := loginRes.last("persistent")
	if !ok {
		t.Fatal("remember should set the cookie")
	}
	p1, err := store.codec.Decode(c1.Value)
	if err != nil {
		t.Fatalf("decode c1: %v", err)
	}

	// A fresh browser session presenting C1 authenticates and gets C2.
	req := newFakeRequest("Firefox")
	req.cookies["persistent"] = c1.Value
	res := &fakeResponse{}

	result, err := store.GetAuthenticatedUser(ctx, req, res)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result == nil || result.UserID != 7 || result.Strategy != StrategyPersistent || !result.Remembered {
		t.Fatalf("unexpected result: %+v", result)
	}

	c2, ok := res.last("persistent")
	if !ok || c2.MaxAge < 0 {
		t.Fatal("rotation should reissue the cookie")
	}
	p2, err := store.codec.Decode(c2.Value)
	if err != nil {
		t.Fatalf("decode c2: %v", err)
	}
	if p2.Series != p1.Series {
		t.Fatal("rotation must keep the series")
	}
	if p2.Token == p1.Token {
		t.Fatal("rotation must change the token")
	}

	count, err := persistent.Count(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one live row for the series, got %d", count)
	}
}

func TestRememberReplayWipesAllPersistentSessions(t *testing.T) {
	store, persistent, _, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	loginReq := newFakeRequest("Firefox")
	loginRes := &fakeResponse{}
	if err := store.SignIn(ctx, 7, loginReq, loginRes); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := store.Remember(ctx, 7, "ada@example.com", loginReq, loginRes); err != nil {
		t.Fatalf("remember: %v", err)
	}
	c1, _ := loginRes.last("persistent")

	// Consume C1 once; a second slot exists from another device.
	other := newFakeRequest("Firefox")
	otherRes := &fakeResponse{}
	if err := store.SignIn(ctx, 7, other, otherRes); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := store.Remember(ctx, 7, "ada@example.com", other, otherRes); err != nil {
		t.Fatalf("remember: %v", err)
	}

	req := newFakeRequest("Firefox")
	req.cookies["persistent"] = c1.Value
	if _, err := store.GetAuthenticatedUser(ctx, req, &fakeResponse{}); err != nil {
		t.Fatalf("first presentation: %v", err)
	}

	// Presenting the pre-rotation token again is a replay.
	replayReq := newFakeRequest("Firefox")
	replayReq.cookies["persistent"] = c1.Value
	replayRes := &fakeResponse{}

	result, err := store.GetAuthenticatedUser(ctx, replayReq, replayRes)
	if !errors.Is(err, ErrTokenReplay) {
		t.Fatalf("expected ErrTokenReplay, got result=%+v err=%v", result, err)
	}
	var replay *TokenReplayError
	if !errors.As(err, &replay) || replay.UserID != 7 {
		t.Fatalf("replay error must carry the targeted account, got %v", err)
	}

	count, err := persistent.Count(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("replay must wipe every persistent session, %d left", count)
	}

	cleared, ok := replayRes.last("persistent")
	if !ok || cleared.MaxAge != -1 {
		t.Fatal("replay must clear the cookie")
	}
}

func TestRememberCookieRejectedOnAgentMismatch(t *testing.T) {
	store, persistent, _, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	loginReq := newFakeRequest("Firefox")
	loginRes := &fakeResponse{}
	if err := store.SignIn(ctx, 7, loginReq, loginRes); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := store.Remember(ctx, 7, "ada@example.com", loginReq, loginRes); err != nil {
		t.Fatalf("remember: %v", err)
	}
	c1, _ := loginRes.last("persistent")

	req := newFakeRequest("Chrome")
	req.cookies["persistent"] = c1.Value
	res := &fakeResponse{}

	result, err := store.GetAuthenticatedUser(ctx, req, res)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result != nil {
		t.Fatal("cookie bound to Firefox must be rejected for Chrome")
	}

	// The slot stays live: an agent mismatch is not consumption.
	count, err := persistent.Count(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the slot to survive, got %d rows", count)
	}
}

func TestSignOutClearsEverything(t *testing.T) {
	store, persistent, registry, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	req := newFakeRequest("Firefox")
	res := &fakeResponse{}
	if err := store.SignIn(ctx, 7, req, res); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := store.Remember(ctx, 7, "ada@example.com", req, res); err != nil {
		t.Fatalf("remember: %v", err)
	}
	sessionID := req.session.ID()
	c1, _ := res.last("persistent")
	req.cookies["persistent"] = c1.Value

	if err := store.SignOut(ctx, req, res); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	if req.session.destroyed == 0 {
		t.Fatal("session must be destroyed")
	}
	valid, err := registry.IsValid(ctx, sessionID)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if valid {
		t.Fatal("registry row must be retired")
	}
	count, err := persistent.Count(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("presented slot must be deleted, %d left", count)
	}
	cleared, ok := res.last("persistent")
	if !ok || cleared.MaxAge != -1 {
		t.Fatal("remember-me cookie must be cleared")
	}
}

func TestGuestSessionNeedsNoRegistry(t *testing.T) {
	store, _, _, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	req := newFakeRequest("Firefox")
	res := &fakeResponse{}
	if err := store.SignIn(ctx, -1, req, res); err != nil {
		t.Fatalf("guest sign in: %v", err)
	}

	result, err := store.GetAuthenticatedUser(ctx, req, res)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result == nil || result.UserID != -1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got, _ := req.session.Get(keyUserID); got != strconv.Itoa(-1) {
		t.Fatalf("unexpected stored subject %q", got)
	}
}

func TestSetTwoFactorVerifiedRequiresSubject(t *testing.T) {
	store, _, _, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	req := newFakeRequest("Firefox")
	res := &fakeResponse{}

	if err := store.SetTwoFactorVerified(ctx, req, res); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	if err := store.SignIn(ctx, 7, req, res); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := store.SetTwoFactorVerified(ctx, req, res); err != nil {
		t.Fatalf("set verified: %v", err)
	}

	result, err := store.GetAuthenticatedUser(ctx, req, res)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result == nil || !result.TwoFactorVerified {
		t.Fatalf("expected two-factor-verified result, got %+v", result)
	}
}
