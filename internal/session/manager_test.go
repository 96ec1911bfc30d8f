package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/nstefanov/authcore/internal/model"
	"github.com/nstefanov/authcore/internal/repository/memory"
)

func newTestManager(t *testing.T, cfg Config) (*Manager, *memory.UserStore) {
	t.Helper()
	users := memory.NewUserStore()
	return NewManager(memory.NewSessionStore(), users, cfg, nil), users
}

func testUser(t *testing.T, users *memory.UserStore) *model.User {
	t.Helper()
	u := &model.User{
		ID:    uuid.Must(uuid.NewV4()),
		Email: "a@x.com",
	}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestCreateAndValidate_Roundtrip(t *testing.T) {
	t.Parallel()
	m, users := newTestManager(t, Config{})
	u := testUser(t, users)
	ctx := context.Background()

	sess, err := m.Create(ctx, u, "1.2.3.4", "UA")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.Token == "" || !sess.ExpiresAt.After(time.Now()) {
		t.Fatalf("bad session: %+v", sess)
	}

	check, err := m.Validate(ctx, sess.Token, "1.2.3.4")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !check.Valid || check.Action != model.SessionRefreshed {
		t.Fatalf("validation failed: %+v", check)
	}
	if check.User == nil || check.User.ID != u.ID {
		t.Fatalf("wrong user: %+v", check.User)
	}
	if check.User.PwdHash != nil || check.User.Salt != nil {
		t.Fatalf("credential material leaked through validation")
	}
}

func TestValidate_UnknownToken(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, Config{})

	check, err := m.Validate(context.Background(), "bogus", "")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if check.Valid || check.Action != model.SessionRejected {
		t.Fatalf("unknown token accepted: %+v", check)
	}
}

func TestConcurrentSessionCap_EvictsOldestFirst(t *testing.T) {
	t.Parallel()
	m, users := newTestManager(t, Config{MaxConcurrent: 3})
	u := testUser(t, users)
	ctx := context.Background()

	base := time.Now()
	var tokens []string
	for i := 0; i < 3; i++ {
		m.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		sess, err := m.Create(ctx, u, "", "")
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		tokens = append(tokens, sess.Token)
	}

	m.now = func() time.Time { return base.Add(10 * time.Second) }
	sess, err := m.Create(ctx, u, "", "")
	if err != nil {
		t.Fatalf("Create over cap: %v", err)
	}
	tokens = append(tokens, sess.Token)

	active, err := m.UserSessions(ctx, u.ID)
	if err != nil {
		t.Fatalf("UserSessions: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("want exactly 3 active sessions, got %d", len(active))
	}

	// The oldest token must now be rejected, the rest still valid.
	if check, _ := m.Validate(ctx, tokens[0], ""); check.Valid {
		t.Fatalf("evicted (oldest) session still valid")
	}
	for _, tok := range tokens[1:] {
		if check, _ := m.Validate(ctx, tok, ""); !check.Valid {
			t.Fatalf("surviving session rejected")
		}
	}
}

func TestValidate_AbsoluteExpiry(t *testing.T) {
	t.Parallel()
	m, users := newTestManager(t, Config{MaxAge: time.Hour})
	u := testUser(t, users)
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }
	sess, err := m.Create(ctx, u, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	m.now = func() time.Time { return base.Add(61 * time.Minute) }
	check, err := m.Validate(ctx, sess.Token, "")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if check.Valid {
		t.Fatalf("expired session accepted")
	}
}

func TestValidate_InactivityTimeout(t *testing.T) {
	t.Parallel()
	m, users := newTestManager(t, Config{MaxAge: 24 * time.Hour, InactivityTimeout: time.Hour})
	u := testUser(t, users)
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }
	sess, err := m.Create(ctx, u, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Activity at 30m keeps it alive.
	m.now = func() time.Time { return base.Add(30 * time.Minute) }
	if check, _ := m.Validate(ctx, sess.Token, ""); !check.Valid {
		t.Fatalf("active session rejected")
	}

	// 61m of idleness after that kills it.
	m.now = func() time.Time { return base.Add(30*time.Minute + 61*time.Minute) }
	if check, _ := m.Validate(ctx, sess.Token, ""); check.Valid {
		t.Fatalf("idle session accepted")
	}

	// And it stays dead even for a prompt retry.
	m.now = func() time.Time { return base.Add(30*time.Minute + 62*time.Minute) }
	if check, _ := m.Validate(ctx, sess.Token, ""); check.Valid {
		t.Fatalf("destroyed session came back")
	}
}

func TestValidate_SlidingExpiryCappedByLifetime(t *testing.T) {
	t.Parallel()
	m, users := newTestManager(t, Config{
		MaxAge:            time.Hour,
		InactivityTimeout: 24 * time.Hour,
		SlidingExpiry:     true,
		MaxLifetimeFactor: 2, // hard cap: 2h after creation
	})
	u := testUser(t, users)
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }
	sess, err := m.Create(ctx, u, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// 56m in: extension granted to 1h56m, still refreshed.
	m.now = func() time.Time { return base.Add(56 * time.Minute) }
	check, _ := m.Validate(ctx, sess.Token, "")
	if !check.Valid || check.Action != model.SessionRefreshed {
		t.Fatalf("mid-life validation: %+v", check)
	}

	// 115m in: the cap pins expiry at 2h; less than MaxAge/10 remains.
	m.now = func() time.Time { return base.Add(115 * time.Minute) }
	check, _ = m.Validate(ctx, sess.Token, "")
	if !check.Valid || check.Action != model.SessionExpiringSoon {
		t.Fatalf("near-cap validation: %+v", check)
	}

	// Past the cap the session is gone regardless of recent activity.
	m.now = func() time.Time { return base.Add(121 * time.Minute) }
	if check, _ := m.Validate(ctx, sess.Token, ""); check.Valid {
		t.Fatalf("session outlived its lifetime cap")
	}
}

func TestValidate_IPBinding(t *testing.T) {
	t.Parallel()
	m, users := newTestManager(t, Config{BindIP: true})
	u := testUser(t, users)
	ctx := context.Background()

	sess, err := m.Create(ctx, u, "1.2.3.4", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if check, _ := m.Validate(ctx, sess.Token, "5.6.7.8"); check.Valid {
		t.Fatalf("IP mismatch accepted with BindIP on")
	}
	if check, _ := m.Validate(ctx, sess.Token, "1.2.3.4"); !check.Valid {
		t.Fatalf("matching IP rejected")
	}

	// Binding is opt-in: the default config ignores drift.
	m2, users2 := newTestManager(t, Config{})
	u2 := testUser(t, users2)
	sess2, _ := m2.Create(ctx, u2, "1.2.3.4", "")
	if check, _ := m2.Validate(ctx, sess2.Token, "5.6.7.8"); !check.Valid {
		t.Fatalf("IP drift rejected without BindIP")
	}
}

func TestDestroy_Idempotent(t *testing.T) {
	t.Parallel()
	m, users := newTestManager(t, Config{})
	u := testUser(t, users)
	ctx := context.Background()

	sess, err := m.Create(ctx, u, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Destroy(ctx, sess.Token); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if check, _ := m.Validate(ctx, sess.Token, ""); check.Valid {
		t.Fatalf("destroyed session accepted")
	}
	// Destroying again, or destroying garbage, is not an error.
	if err := m.Destroy(ctx, sess.Token); err != nil {
		t.Fatalf("Destroy(2): %v", err)
	}
	if err := m.Destroy(ctx, "never-existed"); err != nil {
		t.Fatalf("Destroy unknown: %v", err)
	}
}

func TestInvalidateUser_KeepsCallerSession(t *testing.T) {
	t.Parallel()
	m, users := newTestManager(t, Config{MaxConcurrent: 10})
	u := testUser(t, users)
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 3; i++ {
		sess, err := m.Create(ctx, u, "", "")
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		tokens = append(tokens, sess.Token)
	}

	n, err := m.InvalidateUser(ctx, u.ID, "password_changed", tokens[2])
	if err != nil {
		t.Fatalf("InvalidateUser: %v", err)
	}
	if n != 2 {
		t.Fatalf("invalidated %d sessions, want 2", n)
	}
	if check, _ := m.Validate(ctx, tokens[2], ""); !check.Valid {
		t.Fatalf("caller's own session was invalidated")
	}
	for _, tok := range tokens[:2] {
		if check, _ := m.Validate(ctx, tok, ""); check.Valid {
			t.Fatalf("other session survived invalidation")
		}
	}

	// Without keepToken everything goes.
	n, err = m.InvalidateUser(ctx, u.ID, "logout_everywhere", "")
	if err != nil || n != 1 {
		t.Fatalf("full invalidation n=%d err=%v, want 1", n, err)
	}
}

func TestValidate_DeletedUserRejected(t *testing.T) {
	t.Parallel()
	m, users := newTestManager(t, Config{})
	u := testUser(t, users)
	ctx := context.Background()

	sess, err := m.Create(ctx, u, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := users.Delete(ctx, u.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if check, _ := m.Validate(ctx, sess.Token, ""); check.Valid {
		t.Fatalf("session for deleted user accepted")
	}
}

func TestCleanupExpired(t *testing.T) {
	t.Parallel()
	m, users := newTestManager(t, Config{MaxAge: time.Hour})
	u := testUser(t, users)
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }
	if _, err := m.Create(ctx, u, "", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	m.now = func() time.Time { return base.Add(2 * time.Hour) }
	if err := m.CleanupExpired(ctx); err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	active, err := m.UserSessions(ctx, u.ID)
	if err != nil {
		t.Fatalf("UserSessions: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expired session survived cleanup")
	}
}

func TestCookieConfigPerEnvironment(t *testing.T) {
	t.Parallel()

	prod, _ := newTestManager(t, Config{Environment: EnvProduction})
	opts := prod.CookieConfig()
	if !opts.HTTPOnly || !opts.Secure || opts.SameSite != "Strict" || opts.Path != "/" {
		t.Fatalf("production cookie options: %+v", opts)
	}

	dev, _ := newTestManager(t, Config{Environment: EnvDevelopment})
	opts = dev.CookieConfig()
	if !opts.HTTPOnly || opts.Secure || opts.SameSite != "Lax" {
		t.Fatalf("development cookie options: %+v", opts)
	}
}

func TestCookieStrings(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, Config{Environment: EnvProduction, CookieName: "sid"})

	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	c := m.CookieString("tok123", exp)
	for _, want := range []string{"sid=tok123", "Path=/", "HttpOnly", "Secure", "SameSite=Strict", "Expires=Wed, 02 Jan 2030 03:04:05 GMT"} {
		if !strings.Contains(c, want) {
			t.Fatalf("cookie %q missing %q", c, want)
		}
	}

	clear := m.ClearCookieString()
	if !strings.Contains(clear, "sid=;") {
		t.Fatalf("clear cookie keeps a value: %q", clear)
	}
	if !strings.Contains(clear, "Expires=Thu, 01 Jan 1970") {
		t.Fatalf("clear cookie expiry not in the past: %q", clear)
	}
}
