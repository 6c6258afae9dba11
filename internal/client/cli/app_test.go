package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/altair/internal/client/client"
	"github.com/dmitrijs2005/altair/internal/client/config"
	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/logging"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/repositories/sqlite"
	"github.com/dmitrijs2005/altair/internal/rpc"
	"github.com/dmitrijs2005/altair/internal/testutil"
	"github.com/stretchr/testify/require"
)

const testUser = "0190a0b4-0000-7000-8000-000000000001"

// fakeAPI embeds API so unexpected calls panic.
type fakeAPI struct {
	API

	mu       sync.Mutex
	tokens   client.Tokens
	users    map[string]string
	pingErr  error
	budgetEr error

	conflictAll bool
	pushed      []models.SyncRecord
	pull        map[models.EntityType][]models.SyncRecord
	budgets     map[string]int
	presigned   []common.ID
	onPresign   func(itemID common.ID)
	closed      bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		users:   map[string]string{},
		pull:    map[models.EntityType][]models.SyncRecord{},
		budgets: map[string]int{},
	}
}

func (f *fakeAPI) Tokens() client.Tokens {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens
}

func (f *fakeAPI) SetTokens(t client.Tokens) {
	f.mu.Lock()
	f.tokens = t
	f.mu.Unlock()
}

func (f *fakeAPI) Register(_ context.Context, userName, password string) (string, error) {
	if _, ok := f.users[userName]; ok {
		return "", common.Duplicate("user", common.ID(userName))
	}
	f.users[userName] = password
	return testUser, nil
}

func (f *fakeAPI) Login(_ context.Context, userName, password string) (client.Tokens, error) {
	if f.users[userName] != password {
		return client.Tokens{}, common.AuthError(common.ReasonInvalidCredentials, "invalid user name or password")
	}
	t := client.Tokens{UserID: testUser, AccessToken: "access-" + userName, RefreshToken: "refresh-" + userName}
	f.SetTokens(t)
	return t, nil
}

func (f *fakeAPI) Ping(context.Context) error { return f.pingErr }

func (f *fakeAPI) Pull(_ context.Context, req models.PullRequest) (*models.PullResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	recs := f.pull[req.Type]
	delete(f.pull, req.Type)
	return &models.PullResponse{Entities: recs, ServerTimestamp: testutil.FixedClock().Now()}, nil
}

func (f *fakeAPI) Push(_ context.Context, req models.PushRequest) (*models.PushResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := &models.PushResponse{}
	for _, rec := range req.Entities {
		if f.conflictAll {
			resp.Conflicts = append(resp.Conflicts, models.SyncConflict{
				EntityID: rec.ID, EntityType: rec.Type, ServerVersion: rec.Version + 3, ClientVersion: rec.Version,
				Message: "changed on another device",
			})
			continue
		}
		f.pushed = append(f.pushed, rec)
		resp.Accepted = append(resp.Accepted, rec.ID)
	}
	return resp, nil
}

func (f *fakeAPI) SetDailyBudget(_ context.Context, date string, budget int) (*models.EnergyBudget, error) {
	if f.budgetEr != nil {
		return nil, f.budgetEr
	}
	f.budgets[date] = budget
	return &models.EnergyBudget{Date: date, Budget: budget}, nil
}

func (f *fakeAPI) PresignAttachment(_ context.Context, itemID common.ID, contentType string) (*rpc.PresignResponse, error) {
	f.presigned = append(f.presigned, itemID)
	if f.onPresign != nil {
		f.onPresign(itemID)
	}
	return &rpc.PresignResponse{AttachmentID: common.NewID(), URL: "http://s3.local/upload?sig=1"}, nil
}

func (f *fakeAPI) Close() error {
	f.closed = true
	return nil
}

type harness struct {
	app   *App
	api   *fakeAPI
	store *sqlite.Store
	out   *bytes.Buffer
}

func newHarness(t *testing.T, input string) *harness {
	t.Helper()
	s, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.OnlineCheckInterval = 0

	api := newFakeAPI()
	out := &bytes.Buffer{}
	a := newApp(cfg, s, api, testutil.FixedClock(), logging.Nop(), strings.NewReader(input), out)
	return &harness{app: a, api: api, store: s, out: out}
}

// signIn fakes a stored session without going through login.
func (h *harness) signIn() {
	h.api.SetTokens(client.Tokens{UserID: testUser, AccessToken: "a", RefreshToken: "r"})
}

func (h *harness) run(t *testing.T, args ...string) string {
	t.Helper()
	h.out.Reset()
	require.NoError(t, h.app.Execute(context.Background(), args), "altair %s", strings.Join(args, " "))
	return h.out.String()
}

func (h *harness) runErr(args ...string) error {
	h.out.Reset()
	return h.app.Execute(context.Background(), args)
}

func (h *harness) inbox(t *testing.T) []*models.InboxItem {
	t.Helper()
	items, err := h.store.Repos().Inbox.GetAllForUser(context.Background(), testUser)
	require.NoError(t, err)
	return items
}

func stubPassword(t *testing.T, pw string) {
	t.Helper()
	old := readPassword
	readPassword = func(int) ([]byte, error) { return []byte(pw), nil }
	t.Cleanup(func() { readPassword = old })
}
