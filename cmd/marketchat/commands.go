package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vgs/marketchat/internal/api"
	"github.com/vgs/marketchat/internal/chat"
	"github.com/vgs/marketchat/internal/credstore"
	"github.com/vgs/marketchat/internal/domain"
	"github.com/vgs/marketchat/internal/session"
	"github.com/vgs/marketchat/pkg/validator"
)

const timeLayout = "2006-01-02 15:04"

func (a *app) threadsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "List your conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, token, err := a.requireToken(ctx)
			if err != nil {
				return err
			}

			store := chat.NewThreadStore(a.client(), chat.WithLogger(a.logger), chat.WithMetrics(a.metrics))
			threads, err := store.Load(ctx, token, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(threads) == 0 {
				fmt.Fprintln(out, "No conversations yet.")
				return nil
			}
			sortByActivity(threads)
			for _, t := range threads {
				printThread(out, t)
			}
			return nil
		},
	}
}

// sortByActivity orders threads newest first. The server does not promise an
// order; threads without a timestamp keep their relative order at the end.
func sortByActivity(threads []domain.Thread) {
	sort.SliceStable(threads, func(i, j int) bool {
		a, aok := threads[i].LastActivity()
		b, bok := threads[j].LastActivity()
		if aok != bok {
			return aok
		}
		return aok && a.After(b)
	})
}

func printThread(w io.Writer, t domain.Thread) {
	when := ""
	if at, ok := t.LastActivity(); ok {
		when = at.Local().Format(timeLayout)
	}
	fmt.Fprintf(w, "%-24s %-28s %-16s %s\n", t.Name, t.UserID, when, t.LastMessage)
}

func (a *app) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history USER_ID",
		Short: "Print the conversation with a user, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validator.ValidateUserID(args[0]).Err(); err != nil {
				return err
			}
			ctx := cmd.Context()
			sess, token, err := a.requireToken(ctx)
			if err != nil {
				return err
			}

			store := chat.NewConversationStore(a.client(), chat.WithLogger(a.logger), chat.WithMetrics(a.metrics))
			msgs, err := store.Load(ctx, token, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintln(out, "No messages yet.")
				return nil
			}
			for _, m := range msgs {
				printMessage(out, m, sess.SelfID())
			}
			return nil
		},
	}
}

func printMessage(w io.Writer, m domain.Message, selfID string) {
	who := m.SenderID
	if m.FromSelf(selfID) {
		who = "You"
	}
	when := m.SentAt
	if at, ok := m.SentTime(); ok {
		when = at.Local().Format(timeLayout)
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", when, who, m.Text)
}

func (a *app) sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send USER_ID TEXT...",
		Short: "Send a message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validator.ValidateUserID(args[0]).Err(); err != nil {
				return err
			}
			ctx := cmd.Context()
			sess, token, err := a.requireToken(ctx)
			if err != nil {
				return err
			}

			opts := []chat.Option{
				chat.WithLogger(a.logger),
				chat.WithMetrics(a.metrics),
				chat.WithSendLimit(a.cfg.Send.PerMinute),
			}
			client := a.client()
			composer := chat.NewComposer(client,
				chat.NewConversationStore(client, opts...),
				chat.NewThreadStore(client, opts...),
				opts...,
			)
			composer.SetDraft(strings.Join(args[1:], " "))

			msg, err := composer.Submit(ctx, token, args[0])
			if err != nil {
				return err
			}
			printMessage(cmd.OutOrStdout(), *msg, sess.SelfID())
			return nil
		},
	}
}

func (a *app) loginCmd() *cobra.Command {
	var token string
	var skipVerify bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the bearer token used for every request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			token = strings.TrimSpace(token)
			if err := validator.ValidateToken(token).Err(); err != nil {
				return err
			}

			if !skipVerify {
				_, err := a.client().ListThreads(ctx, token)
				var apiErr *api.Error
				if errors.As(err, &apiErr) && apiErr.Unauthorized() {
					return errors.New("the server rejected this token")
				}
				if err != nil {
					return fmt.Errorf("verifying token: %w", err)
				}
			}

			store, err := credstore.Open(ctx, a.cfg.Credentials)
			if err != nil {
				return fmt.Errorf("opening credential store: %w", err)
			}
			defer store.Close()

			if err := store.Set(ctx, credstore.TokenKey, token); err != nil {
				return fmt.Errorf("saving token: %w", err)
			}

			if who := session.SubjectOf(token); who != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", who)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Signed in")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token issued by the marketplace")
	cmd.Flags().BoolVar(&skipVerify, "no-verify", false, "store the token without checking it against the server")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := credstore.Open(ctx, a.cfg.Credentials)
			if err != nil {
				return fmt.Errorf("opening credential store: %w", err)
			}
			defer store.Close()

			if err := store.Delete(ctx, credstore.TokenKey); err != nil && !errors.Is(err, credstore.ErrNotFound) {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

