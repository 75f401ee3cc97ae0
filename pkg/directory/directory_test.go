package directory

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onurcolak/bulk-dispatch-service/environments"
)

// fakeDirectory serves /login and /contacts with scripted responses.
type fakeDirectory struct {
	logins int32
	reads  int32

	loginStatus int
	// contacts returns the status and body of the n-th read (1-based).
	contacts func(n int32) (int, string)

	loginGate chan struct{}
	loginSeen chan struct{}
	seenOnce  sync.Once
}

func (f *fakeDirectory) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.logins, 1)
		if f.loginSeen != nil {
			f.seenOnce.Do(func() { close(f.loginSeen) })
		}
		if f.loginGate != nil {
			<-f.loginGate
		}

		w.Header().Set("Content-Type", "application/json")
		if f.loginStatus != 0 && f.loginStatus != http.StatusOK {
			w.WriteHeader(f.loginStatus)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"tok"}`))
	})

	mux.HandleFunc("/contacts", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.reads, 1)
		status, body := http.StatusOK, `[]`
		if f.contacts != nil {
			status, body = f.contacts(n)
		}
		if status >= 300 && status < 400 {
			w.Header().Set("Location", "/login-page")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})

	return mux
}

func testConfig(baseURL string) environments.DirectoryConfig {
	return environments.DirectoryConfig{
		LoginURL:     baseURL + "/login",
		ContactsURL:  baseURL + "/contacts",
		Email:        "ops@example.com",
		Password:     "secret",
		LoginTimeout: 5 * time.Second,
		ReadTimeout:  5 * time.Second,
		TokenTTL:     time.Hour,
		TokenMargin:  5 * time.Minute,
		MaxAttempts:  3,
		BackoffBase:  time.Millisecond,
	}
}

func newTestDirectory(t *testing.T, f *fakeDirectory) (*Client, *TokenManager) {
	t.Helper()

	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	tokens := NewTokenManager(cfg)
	return NewClient(cfg, tokens), tokens
}

func TestToken_ReusesCachedTokenUntilMargin(t *testing.T) {
	f := &fakeDirectory{}
	_, tokens := newTestDirectory(t, f)

	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return now }

	ctx := context.Background()
	if _, err := tokens.Token(ctx, false); err != nil {
		t.Fatalf("Token returned error: %v", err)
	}

	now = now.Add(54 * time.Minute)
	if _, err := tokens.Token(ctx, false); err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if n := atomic.LoadInt32(&f.logins); n != 1 {
		t.Fatalf("expected cached token to be reused, got %d logins", n)
	}

	now = now.Add(2 * time.Minute)
	if _, err := tokens.Token(ctx, false); err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if n := atomic.LoadInt32(&f.logins); n != 2 {
		t.Fatalf("expected refresh inside the safety margin, got %d logins", n)
	}

	if _, err := tokens.Token(ctx, true); err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if n := atomic.LoadInt32(&f.logins); n != 3 {
		t.Fatalf("expected forced refresh, got %d logins", n)
	}
}

func TestToken_NotConfigured(t *testing.T) {
	tokens := NewTokenManager(environments.DirectoryConfig{})

	if _, err := tokens.Token(context.Background(), false); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestToken_ExhaustsAttempts(t *testing.T) {
	f := &fakeDirectory{loginStatus: http.StatusInternalServerError}
	_, tokens := newTestDirectory(t, f)

	_, err := tokens.Token(context.Background(), false)
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if n := atomic.LoadInt32(&f.logins); n != 3 {
		t.Fatalf("expected 3 login attempts, got %d", n)
	}
}

func TestToken_ConcurrentRefreshesShareOneLogin(t *testing.T) {
	f := &fakeDirectory{
		loginGate: make(chan struct{}),
		loginSeen: make(chan struct{}),
	}
	_, tokens := newTestDirectory(t, f)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tokens.Token(context.Background(), true); err != nil {
				errs <- err
			}
		}()
	}

	<-f.loginSeen
	time.Sleep(100 * time.Millisecond)
	close(f.loginGate)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("Token returned error: %v", err)
	}
	if n := atomic.LoadInt32(&f.logins); n != 1 {
		t.Fatalf("expected a single shared login, got %d", n)
	}
}

func TestToken_CancelledCallerDoesNotFailSharedLogin(t *testing.T) {
	f := &fakeDirectory{
		loginGate: make(chan struct{}),
		loginSeen: make(chan struct{}),
	}
	_, tokens := newTestDirectory(t, f)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := tokens.Token(firstCtx, true)
		firstErr <- err
	}()

	<-f.loginSeen

	secondErr := make(chan error, 1)
	go func() {
		_, err := tokens.Token(context.Background(), true)
		secondErr <- err
	}()
	time.Sleep(100 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cancelled caller to stop waiting, got %v", err)
	}

	close(f.loginGate)
	if err := <-secondErr; err != nil {
		t.Fatalf("expected the other caller to get the token, got %v", err)
	}
	if n := atomic.LoadInt32(&f.logins); n != 1 {
		t.Fatalf("expected a single shared login, got %d", n)
	}
}

func TestFetchContacts_PersistentUnauthorized(t *testing.T) {
	f := &fakeDirectory{
		contacts: func(int32) (int, string) { return http.StatusUnauthorized, `{"error":"expired"}` },
	}
	client, _ := newTestDirectory(t, f)

	_, err := client.FetchContacts(context.Background())
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
	if reads, logins := atomic.LoadInt32(&f.reads), atomic.LoadInt32(&f.logins); reads != 2 || logins != 2 {
		t.Fatalf("expected 2 reads and 2 logins, got %d reads and %d logins", reads, logins)
	}
}

func TestFetchContacts_RedirectRecoversWithFreshToken(t *testing.T) {
	f := &fakeDirectory{
		contacts: func(n int32) (int, string) {
			if n == 1 {
				return http.StatusFound, ""
			}
			return http.StatusOK, `{"payload":{"data":[{"name":"Ana","lastName":"Ruiz"}]}}`
		},
	}
	client, _ := newTestDirectory(t, f)

	contacts, err := client.FetchContacts(context.Background())
	if err != nil {
		t.Fatalf("FetchContacts returned error: %v", err)
	}
	if len(contacts) != 1 || contacts[0].Name != "Ana" {
		t.Fatalf("unexpected contacts %+v", contacts)
	}
	if reads, logins := atomic.LoadInt32(&f.reads), atomic.LoadInt32(&f.logins); reads != 2 || logins != 2 {
		t.Fatalf("expected 2 reads and 2 logins, got %d reads and %d logins", reads, logins)
	}
}

func TestFetchContacts_LoginPageIsAuthExpired(t *testing.T) {
	f := &fakeDirectory{
		contacts: func(int32) (int, string) { return http.StatusOK, `<html><body>Login</body></html>` },
	}
	client, _ := newTestDirectory(t, f)

	if _, err := client.FetchContacts(context.Background()); !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
}

func TestFetchContacts_TransientThenSuccess(t *testing.T) {
	f := &fakeDirectory{
		contacts: func(n int32) (int, string) {
			if n == 1 {
				return http.StatusServiceUnavailable, "busy"
			}
			return http.StatusOK, `{"payload":[{"fullName":"Luis Gomez"}]}`
		},
	}
	client, _ := newTestDirectory(t, f)

	contacts, err := client.FetchContacts(context.Background())
	if err != nil {
		t.Fatalf("FetchContacts returned error: %v", err)
	}
	if len(contacts) != 1 || contacts[0].FullName != "Luis Gomez" {
		t.Fatalf("unexpected contacts %+v", contacts)
	}
	if logins := atomic.LoadInt32(&f.logins); logins != 2 {
		t.Fatalf("expected a precautionary refresh after the first failure, got %d logins", logins)
	}
}

func TestFetchContacts_TransientExhaustsAttempts(t *testing.T) {
	f := &fakeDirectory{
		contacts: func(int32) (int, string) { return http.StatusBadGateway, "down" },
	}
	client, _ := newTestDirectory(t, f)

	if _, err := client.FetchContacts(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if reads := atomic.LoadInt32(&f.reads); reads != 3 {
		t.Fatalf("expected 3 reads, got %d", reads)
	}
}

func TestFetchContacts_FatalIsNotRetried(t *testing.T) {
	f := &fakeDirectory{
		contacts: func(int32) (int, string) { return http.StatusNotFound, "missing" },
	}
	client, _ := newTestDirectory(t, f)

	if _, err := client.FetchContacts(context.Background()); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if reads := atomic.LoadInt32(&f.reads); reads != 1 {
		t.Fatalf("expected 1 read, got %d", reads)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		err    error
		want   Outcome
	}{
		{"transport error", 0, "", errors.New("connection reset"), Transient},
		{"server error", http.StatusInternalServerError, "", nil, Transient},
		{"rate limited", http.StatusTooManyRequests, "", nil, Transient},
		{"unauthorized", http.StatusUnauthorized, "", nil, AuthExpired},
		{"forbidden", http.StatusForbidden, "", nil, AuthExpired},
		{"redirect", http.StatusTemporaryRedirect, "", nil, AuthExpired},
		{"html on 200", http.StatusOK, "<html></html>", nil, AuthExpired},
		{"bad request", http.StatusBadRequest, "{}", nil, Fatal},
		{"json on 200", http.StatusOK, `{"payload":[]}`, nil, OK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.status, []byte(tc.body), tc.err); got != tc.want {
				t.Errorf("Classify = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDecodeContacts_AcceptedShapes(t *testing.T) {
	bodies := []string{
		`{"payload":{"data":[{"name":"A"},{"name":"B"}]}}`,
		`{"payload":[{"name":"A"},{"name":"B"}]}`,
		`[{"name":"A"},{"name":"B"}]`,
	}

	for _, body := range bodies {
		contacts, err := decodeContacts([]byte(body))
		if err != nil {
			t.Fatalf("decodeContacts(%s) returned error: %v", body, err)
		}
		if len(contacts) != 2 || contacts[1].Name != "B" {
			t.Errorf("decodeContacts(%s) = %+v", body, contacts)
		}
	}

	contacts, err := decodeContacts([]byte(`{"message":"ok"}`))
	if err != nil || len(contacts) != 0 {
		t.Errorf("expected empty list for unknown shape, got %+v, %v", contacts, err)
	}
}

func TestDecodeContacts_BadListIsAnError(t *testing.T) {
	bodies := []string{
		`[{"name":"A","email":false}]`,
		`  [{"name":"A"},`,
		`{"payload":[{"name":"A","email":false}]}`,
	}

	for _, body := range bodies {
		contacts, err := decodeContacts([]byte(body))
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("decodeContacts(%s): expected ErrMalformed, got %+v, %v", body, contacts, err)
		}
	}
}

func TestFetchContacts_MalformedListSurfaces(t *testing.T) {
	f := &fakeDirectory{contacts: func(n int32) (int, string) {
		return http.StatusOK, `[{"name":"A","email":false}]`
	}}
	client, _ := newTestDirectory(t, f)

	contacts, err := client.FetchContacts(context.Background())
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %+v, %v", contacts, err)
	}
}

func TestToContact(t *testing.T) {
	c := ToContact(RawContact{
		Name:         "ana",
		LastName:     "ruiz",
		CustomerName: "  Ana Ruiz SAS ",
		PhoneNumber:  "3001234567",
		IsCustomer:   "si",
	}, 0)

	if c.ID != "1" || c.Name != "Ana Ruiz SAS" || c.Department != "Apostador" || !c.IsCustomer {
		t.Errorf("unexpected contact %+v", c)
	}
	if c.Phone == nil || *c.Phone != "+573001234567" {
		t.Errorf("expected +57 prefix, got %v", c.Phone)
	}

	inactive := ToContact(RawContact{IsCustomer: true, State: "N"}, 4)
	if inactive.Department != "Inactivo" || inactive.Name != "Sin nombre" || inactive.ID != "5" {
		t.Errorf("unexpected inactive contact %+v", inactive)
	}

	staff := ToContact(RawContact{Name: "Luis", IsCustomer: float64(0), PhoneNumber: "+34600111222"}, 1)
	if staff.Department != "Operacional" || *staff.Phone != "+34600111222" {
		t.Errorf("unexpected staff contact %+v", staff)
	}
}
