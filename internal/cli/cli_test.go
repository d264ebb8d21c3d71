package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chronos/internal/app"
	"github.com/noah-isme/chronos/internal/repository"
	"github.com/noah-isme/chronos/pkg/config"
)

type calendarStub struct {
	mu      sync.Mutex
	methods []string
}

func (s *calendarStub) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.methods = append(s.methods, r.Method+" "+r.URL.Path)
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"id":"evt-1","status":"confirmed","summary":"Lunch with Sara"}`))
}

func (s *calendarStub) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.methods...)
}

type harness struct {
	t        *testing.T
	kv       *repository.MemoryKVRepository
	calendar *calendarStub
	cfg      *config.Config
	client   *http.Client
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	stub := &calendarStub{}
	server := httptest.NewServer(http.HandlerFunc(stub.serve))
	t.Cleanup(server.Close)

	return &harness{
		t:        t,
		kv:       repository.NewMemoryKVRepository(),
		calendar: stub,
		client:   server.Client(),
		now:      time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC),
		cfg: &config.Config{
			Env:       config.EnvDevelopment,
			APIPrefix: "/api/v1",
			JWT:       config.JWTConfig{Secret: "jwt-secret", Issuer: "chronos", Expiration: time.Hour},
			Google:    config.GoogleConfig{Enabled: true, CalendarID: "primary", Endpoint: server.URL + "/"},
			Tokens:    config.TokensConfig{EncryptionSecret: "token-secret", RefreshBuffer: time.Minute},
			Ledger:    config.LedgerConfig{MaxHistory: 50},
			Dedup:     config.DedupConfig{Window: 24 * time.Hour},
			Exports: config.ExportsConfig{
				StorageDir:        t.TempDir(),
				SignedURLSecret:   "export-secret",
				SignedURLTTL:      time.Hour,
				Retention:         time.Hour,
				WorkerConcurrency: 1,
			},
			Defaults: config.DefaultsConfig{
				Timezone:        "UTC",
				DurationMinutes: 60,
				ReminderMinutes: 30,
				Providers:       []string{"google"},
				ListMaxResults:  50,
			},
		},
	}
}

// run executes one chronosctl invocation against the shared in-memory store.
func (h *harness) run(args ...string) (map[string]any, string, error) {
	h.t.Helper()
	a := &App{
		loadConfig: func() (*config.Config, error) {
			cfg := *h.cfg
			return &cfg, nil
		},
		options: []app.Option{app.WithKVStore(h.kv), app.WithHTTPClient(h.client)},
		now:     func() time.Time { return h.now },
	}
	cmd := newRootCmd(a)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()

	var env map[string]any
	if out.Len() > 0 {
		require.NoError(h.t, json.Unmarshal(out.Bytes(), &env), out.String())
	}
	return env, errOut.String(), err
}

func (h *harness) mustRun(args ...string) map[string]any {
	h.t.Helper()
	env, stderr, err := h.run(args...)
	require.NoError(h.t, err, "chronosctl %v: %s", args, stderr)
	require.Contains(h.t, env, "data")
	return env
}

func TestClassifyReportsMissingTime(t *testing.T) {
	h := newHarness(t)

	env := h.mustRun("classify", "dentist", "tomorrow")
	data := env["data"].(map[string]any)
	assert.Equal(t, "needs_time", data["nextInput"])
	intent := data["intent"].(map[string]any)
	assert.Equal(t, "create", intent["intent"])
	assert.Equal(t, "fallback", intent["source"])
}

func TestPreferencesPersistAcrossInvocations(t *testing.T) {
	h := newHarness(t)

	h.mustRun("preferences", "set", "--timezone", "Europe/Berlin", "--reminder", "15")
	env := h.mustRun("prefs")
	data := env["data"].(map[string]any)
	assert.Equal(t, "Europe/Berlin", data["timezone"])
	assert.EqualValues(t, 15, data["reminderMinutes"])
	assert.EqualValues(t, 60, data["defaultDurationMinutes"])

	_, stderr, err := h.run("preferences", "set", "--provider", "yahoo")
	require.Error(t, err)
	assert.Contains(t, stderr, "yahoo")
}

func TestRunCreatesThenUndoes(t *testing.T) {
	h := newHarness(t)
	h.mustRun("providers", "connect", "google", "--access-token", "ya29.test")

	env := h.mustRun("run", "Lunch with Sara Friday 1pm for 45m")
	result := env["data"].(map[string]any)
	assert.Equal(t, "success", result["status"])
	assert.NotEmpty(t, result["actionId"])
	assert.Equal(t, []string{"POST /calendars/primary/events"}, h.calendar.calls())

	env = h.mustRun("history")
	state := env["data"].(map[string]any)
	assert.Len(t, state["undoStack"], 1)

	env, _, err := h.run("run", "Lunch with Sara Friday 1pm for 45m")
	require.NoError(t, err)
	assert.Equal(t, "duplicate", env["data"].(map[string]any)["status"])
	assert.Len(t, h.calendar.calls(), 1)

	h.mustRun("undo")
	calls := h.calendar.calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1], "/calendars/primary/events/evt-1")

	env = h.mustRun("history")
	state = env["data"].(map[string]any)
	assert.Empty(t, state["undoStack"])
	assert.Len(t, state["redoStack"], 1)
}

func TestRunStopsWhenTimeIsMissing(t *testing.T) {
	h := newHarness(t)

	env := h.mustRun("run", "dentist tomorrow")
	assert.Equal(t, "needs_time", env["data"].(map[string]any)["nextInput"])
	assert.Empty(t, h.calendar.calls())
}

func TestRunRejectsUnknownProvider(t *testing.T) {
	h := newHarness(t)

	_, stderr, err := h.run("run", "lunch friday 1pm", "--provider", "yahoo")
	require.Error(t, err)
	assert.Contains(t, stderr, `unknown provider "yahoo"`)
}

func TestUndoWithEmptyHistoryFails(t *testing.T) {
	h := newHarness(t)

	_, stderr, err := h.run("undo")
	require.Error(t, err)
	assert.NotEmpty(t, stderr)
}

func TestTokenMint(t *testing.T) {
	h := newHarness(t)

	env := h.mustRun("token", "mint", "--subject", "ops", "--scope", "admin", "--ttl", "10m")
	data := env["data"].(map[string]any)
	assert.Equal(t, "ops", data["subject"])
	assert.NotEmpty(t, data["token"])
}

func TestHousekeepingRun(t *testing.T) {
	h := newHarness(t)

	env := h.mustRun("housekeeping", "run")
	data := env["data"].(map[string]any)
	assert.Contains(t, data, "purgedEntries")
	assert.Contains(t, data, "refreshedTokens")
}
