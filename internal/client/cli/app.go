package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/altair/internal/client/client"
	"github.com/dmitrijs2005/altair/internal/client/config"
	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/logging"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/quest"
	"github.com/dmitrijs2005/altair/internal/repositories/sqlite"
	"github.com/dmitrijs2005/altair/internal/rpc"
	"github.com/dmitrijs2005/altair/internal/syncer"
	"github.com/dmitrijs2005/altair/internal/timex"
	"github.com/dmitrijs2005/altair/internal/triage"
)

// API is the server surface the CLI uses. *client.GRPCClient satisfies it.
type API interface {
	syncer.Remote
	Register(ctx context.Context, userName, password string) (string, error)
	Login(ctx context.Context, userName, password string) (client.Tokens, error)
	Tokens() client.Tokens
	SetTokens(t client.Tokens)
	SetDailyBudget(ctx context.Context, date string, budget int) (*models.EnergyBudget, error)
	PresignAttachment(ctx context.Context, inboxItemID common.ID, contentType string) (*rpc.PresignResponse, error)
	Close() error
}

const (
	keyUserID       = "session.user_id"
	keyUserName     = "session.user_name"
	keyAccessToken  = "session.access_token"
	keyRefreshToken = "session.refresh_token"
)

type App struct {
	config *config.Config
	store  *sqlite.Store
	meta   *sqlite.MetadataRepository
	api    API
	clock  timex.Clock
	logger logging.Logger

	mirror *sqlite.Mirror
	engine *syncer.Engine
	triage *triage.Engine
	quests *quest.Controller

	reader *bufio.Reader
	in     io.Reader
	out    io.Writer

	userName string
}

// NewApp opens the local mirror, dials the server lazily and restores the
// persisted session.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	path, err := c.ResolveDatabasePath()
	if err != nil {
		return nil, err
	}

	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}

	grpcClient, err := client.NewAltairClient(c.ServerEndpointAddr)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	logger := logging.New(os.Stderr, c.LogLevel, "text")
	a := newApp(c, store, grpcClient, timex.RealClock{}, logger, os.Stdin, os.Stdout)
	a.setLocation(loc)

	// refreshed tokens outlive the process
	grpcClient.OnTokens = func(t client.Tokens) {
		if err := a.saveTokens(context.Background(), t); err != nil {
			a.logger.Warn(context.Background(), "saving session failed", "error", err)
		}
	}

	if err := a.restoreSession(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func newApp(c *config.Config, store *sqlite.Store, api API, clock timex.Clock, logger logging.Logger, in io.Reader, out io.Writer) *App {
	mirror := sqlite.NewMirror(store)
	return &App{
		config: c,
		store:  store,
		meta:   store.Metadata(),
		api:    api,
		clock:  clock,
		logger: logger,
		mirror: mirror,
		engine: syncer.NewEngine(mirror, api, clock, logger),
		triage: triage.NewEngine(store, clock, logger),
		quests: quest.NewController(store, clock, logger),
		reader: bufio.NewReader(in),
		in:     in,
		out:    out,
	}
}

// setLocation puts local completions and pulled ones on the same calendar.
func (a *App) setLocation(loc *time.Location) {
	a.quests.Location = loc
	a.mirror.Location = loc
}

func (a *App) Close() error {
	return errors.Join(a.api.Close(), a.store.Close())
}

func (a *App) now() time.Time { return timex.Stamp(a.clock.Now()) }

// userID returns the signed-in user or client.ErrNotLoggedIn.
func (a *App) userID() (string, error) {
	id := a.api.Tokens().UserID
	if id == "" {
		return "", client.ErrNotLoggedIn
	}
	return id, nil
}

func (a *App) saveTokens(ctx context.Context, t client.Tokens) error {
	for k, v := range map[string]string{
		keyUserID:       t.UserID,
		keyAccessToken:  t.AccessToken,
		keyRefreshToken: t.RefreshToken,
	} {
		if err := a.meta.Set(ctx, k, []byte(v)); err != nil {
			return err
		}
	}
	return nil
}

// restoreSession loads the session left by a previous login, if any.
func (a *App) restoreSession(ctx context.Context) error {
	get := func(key string) (string, error) {
		v, err := a.meta.Get(ctx, key)
		return string(v), err
	}

	var t client.Tokens
	var err error
	if t.UserID, err = get(keyUserID); err != nil {
		return err
	}
	if t.AccessToken, err = get(keyAccessToken); err != nil {
		return err
	}
	if t.RefreshToken, err = get(keyRefreshToken); err != nil {
		return err
	}
	if a.userName, err = get(keyUserName); err != nil {
		return err
	}
	if t.UserID != "" {
		a.api.SetTokens(t)
	}
	return nil
}

func (a *App) clearSession(ctx context.Context) error {
	if err := a.meta.DeletePrefix(ctx, "session."); err != nil {
		return err
	}
	a.api.SetTokens(client.Tokens{})
	a.userName = ""
	return nil
}

// status is shown in the shell prompt.
func (a *App) status() string {
	s := ""
	if a.userName != "" {
		s = a.userName + " "
	}
	if a.engine.Online() {
		s += "online"
	} else {
		s += "offline"
	}
	return "(" + s + ")"
}
