package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nhle/taskboard/internal/api"
	"github.com/nhle/taskboard/internal/credential"
	"github.com/nhle/taskboard/internal/logging"
	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/store"
)

// cliTimeout bounds a one-shot command end to end.
const cliTimeout = 30 * time.Second

// env is the wiring shared by the commands: configuration, credentials and
// the REST client. The TUI adds the channel, cache and session on top.
type env struct {
	cfg     *model.AppConfig
	tokens  credential.Store
	client  *api.Client
	closers []io.Closer
}

// loadConfig reads the config file and applies the persistent flags.
func loadConfig() (*model.AppConfig, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// newEnv builds the shared wiring. When interactive is set, logs go to the
// configured file (or are discarded) so they do not tear the screen.
func newEnv(interactive bool) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg}

	var out io.Writer = os.Stderr
	switch {
	case cfg.Log.File != "":
		f, err := logging.OpenFile(cfg.Log.File)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, f)
		out = f
	case interactive:
		out = io.Discard
	}
	logging.Init(logging.Config{
		Level:      logging.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     out,
	})

	tokens, err := credential.Open()
	if err != nil {
		logging.Logger.Warn().Err(err).Msg("system keyring unavailable, credentials will not persist")
		tokens = credential.NewMemory()
	}
	e.tokens = tokens

	client, err := api.NewClient(api.Options{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout(),
		Tokens:  tokens,
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	e.client = client
	return e, nil
}

// openCache opens the snapshot cache, or returns nil when it is disabled.
func (e *env) openCache() (store.Store, error) {
	if e.cfg.Cache.Path == "" {
		return nil, nil
	}
	s, err := store.NewSQLiteStore(e.cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	e.closers = append(e.closers, s)
	return s, nil
}

// currentUser resolves the signed-in user or explains how to sign in.
func (e *env) currentUser(ctx context.Context) (*model.User, error) {
	u, err := e.client.GetCurrentUser(ctx)
	if api.IsAuthRequired(err) {
		return nil, errors.New("not signed in; run `taskboard login`")
	}
	if err != nil {
		return nil, errors.New(api.Message(err))
	}
	return u, nil
}

// Close releases everything opened by the env, newest first.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			logging.Logger.Warn().Err(err).Msg("closing resource")
		}
	}
	e.closers = nil
}

func commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, cliTimeout)
}
