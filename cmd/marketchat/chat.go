package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vgs/marketchat/internal/chat"
	"github.com/vgs/marketchat/internal/domain"
	"github.com/vgs/marketchat/internal/live"
	"github.com/vgs/marketchat/internal/session"
	"github.com/vgs/marketchat/internal/tui"
	"github.com/vgs/marketchat/pkg/validator"
)

const liveRetryDelay = 5 * time.Second

func (a *app) chatCmd() *cobra.Command {
	var withID, withName string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat",
		Long: `Opens the thread list and conversation panes.

Use --with to jump straight into a conversation, for example from a
listing's "message seller" link:
  marketchat chat --with seller@uni.edu --name "Sam Seller"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("with") {
				if err := validator.ValidateDeepLink(withID, withName).Err(); err != nil {
					return err
				}
			}
			return a.runChat(cmd.Context(), withID, withName)
		},
	}
	cmd.Flags().StringVar(&withID, "with", "", "user ID to open a conversation with")
	cmd.Flags().StringVar(&withName, "name", "", "display name for --with")
	return cmd
}

func (a *app) runChat(ctx context.Context, withID, withName string) error {
	sess, store, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	page := chat.NewPage(a.client(), sess,
		chat.WithLogger(a.logger),
		chat.WithMetrics(a.metrics),
		chat.WithNarrowWidth(a.cfg.UI.NarrowWidth),
		chat.WithSendLimit(a.cfg.Send.PerMinute),
	)

	var link *domain.DeepLink
	if withID != "" {
		link = &domain.DeepLink{OtherUserID: withID, OtherUserName: withName}
	}

	sub, token, err := a.subscriber(sess)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(tui.New(ctx, page, link, a.logger), tea.WithAltScreen(), tea.WithContext(ctx))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Leaving the screen stops the feed and the metrics server.
		defer cancel()
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	if sub != nil {
		g.Go(func() error {
			err := sub.Run(ctx, token, func(msg domain.Message) {
				program.Send(tui.Incoming(msg))
			})
			if err != nil {
				a.logger.Warn("live feed stopped", zap.Error(err))
			}
			return nil
		})
	}

	if a.cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return a.serveMetrics(ctx)
		})
	}

	return g.Wait()
}

// subscriber returns nil when the live feed is disabled or the session is
// signed out.
func (a *app) subscriber(sess *session.Session) (*live.Subscriber, string, error) {
	token, err := sess.Token()
	if err != nil || !a.cfg.Live.Enabled {
		return nil, "", nil
	}

	feedURL := a.cfg.Live.URL
	if feedURL == "" {
		if feedURL, err = live.URLFromBase(a.cfg.API.BaseURL); err != nil {
			return nil, "", err
		}
	}

	return live.NewSubscriber(feedURL,
		live.WithLogger(a.logger),
		live.WithMetrics(a.metrics),
		live.WithRetry(liveRetryDelay),
	), token, nil
}

func (a *app) serveMetrics(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           a.metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.logger.Info("serving metrics", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
