package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/nhle/taskboard/internal/app"
	"github.com/nhle/taskboard/internal/channel"
	"github.com/nhle/taskboard/internal/logging"
	"github.com/nhle/taskboard/internal/metrics"
	"github.com/nhle/taskboard/internal/session"
	appsync "github.com/nhle/taskboard/internal/sync"
	"github.com/nhle/taskboard/internal/taskview"
)

// runTUI wires the session stack and runs the interactive board until quit.
func runTUI(ctx context.Context) error {
	e, err := newEnv(true)
	if err != nil {
		return err
	}
	defer e.Close()
	log := logging.WithComponent("main")

	cfg := e.cfg
	wsURL, err := channel.URLFromBase(cfg.API.BaseURL)
	if err != nil {
		return err
	}
	ch := channel.New(channel.Options{
		URL:               wsURL,
		ReconnectAttempts: cfg.Channel.ReconnectAttempts,
		ReconnectDelay:    cfg.Channel.ReconnectDelay(),
		ReconnectDelayMax: cfg.Channel.ReconnectDelayMax(),
		Dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.API.Timeout(),
			Jar:              e.client.Jar(),
		},
		Header: e.client.AuthHeader,
	})

	cache, err := e.openCache()
	if err != nil {
		// The board works without the cache; only offline snapshots are lost.
		log.Warn().Err(err).Msg("snapshot cache disabled")
	}
	var viewOpts []taskview.Option
	if cache != nil {
		viewOpts = append(viewOpts, taskview.WithCache(cache))
	}

	sess := session.New(session.Options{
		Client:     e.client,
		Channel:    ch,
		View:       taskview.New(e.client, viewOpts...),
		Cache:      cache,
		EchoWrites: cfg.Channel.EchoWrites,
	})
	defer sess.Close()

	poller := appsync.New(sess, cfg.Display.RefreshInterval())
	defer poller.Stop()

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", cfg.Metrics.Addr).Msg("metrics server")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info().Str("api", cfg.API.BaseURL).Msg("starting board")
	m := app.New(app.Options{Session: sess, Poller: poller})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running board: %w", err)
	}
	return nil
}
