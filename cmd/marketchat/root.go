package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vgs/marketchat/internal/api"
	"github.com/vgs/marketchat/internal/config"
	"github.com/vgs/marketchat/internal/credstore"
	"github.com/vgs/marketchat/internal/metrics"
	"github.com/vgs/marketchat/internal/session"
)

var errNotSignedIn = errors.New("not signed in, run `marketchat login --token <token>` first")

// app carries what every command needs once flags are parsed.
type app struct {
	configPath string
	debug      bool

	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "marketchat",
		Short: "Chat with buyers and sellers from the terminal",
		Long: `marketchat talks to the marketplace Messaging API.

Run without arguments to open the interactive chat.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd.Context(), "", "")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file path (YAML)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		a.chatCmd(),
		a.threadsCmd(),
		a.historyCmd(),
		a.sendCmd(),
		a.loginCmd(),
		a.logoutCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg

	zc := zap.NewProductionConfig()
	if a.debug {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	// The interactive screen owns the terminal, so it logs to a file.
	if interactive(cmd) && cfg.UI.LogFile != "" {
		zc.OutputPaths = []string{cfg.UI.LogFile}
		zc.ErrorOutputPaths = []string{cfg.UI.LogFile}
	}
	a.logger, err = zc.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.metrics = metrics.New(nil)
	return nil
}

func interactive(cmd *cobra.Command) bool {
	return cmd.Name() == "chat" || !cmd.HasParent()
}

func (a *app) client() *api.Client {
	return api.New(a.cfg.API.BaseURL,
		api.WithTimeout(a.cfg.API.Timeout),
		api.WithLogger(a.logger),
		api.WithMetrics(a.metrics),
	)
}

// openSession reads the stored credential. A missing credential yields a
// signed-out session. The caller closes the returned store.
func (a *app) openSession(ctx context.Context) (*session.Session, credstore.Store, error) {
	store, err := credstore.Open(ctx, a.cfg.Credentials)
	if err != nil {
		return nil, nil, fmt.Errorf("opening credential store: %w", err)
	}
	sess, err := session.Open(ctx, store)
	if err != nil {
		if errors.Is(err, session.ErrAuthMissing) {
			return session.New(""), store, nil
		}
		store.Close()
		return nil, nil, err
	}
	return sess, store, nil
}

// requireToken is openSession for commands that cannot run signed out.
func (a *app) requireToken(ctx context.Context) (*session.Session, string, error) {
	sess, store, err := a.openSession(ctx)
	if err != nil {
		return nil, "", err
	}
	store.Close()

	token, err := sess.Token()
	if err != nil {
		return nil, "", errNotSignedIn
	}
	return sess, token, nil
}
