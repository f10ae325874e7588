package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bob-park/on-time-session/devicereg"
	apperrors "github.com/bob-park/on-time-session/internal/errors"
	"github.com/bob-park/on-time-session/session"
	"github.com/spf13/cobra"
)

const commandTimeout = 30 * time.Second

// withApp runs fn against a started app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func newAuthorizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authorize",
		Short: "Print an authorization URL and the PKCE verifier to log in with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newClient(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			req := client.AuthorizationRequest()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Open this URL and sign in:\n\n  %s\n\n", req.URL)
			fmt.Fprintf(out, "state:    %s\n", req.State)
			fmt.Fprintf(out, "verifier: %s\n\n", req.CodeVerifier)
			fmt.Fprintf(out, "Then run: ontime-session login --code <code> --verifier %s\n", req.CodeVerifier)
			return nil
		},
	}
}

func newLoginCmd() *cobra.Command {
	var code, verifier string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Redeem an authorization code and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.manager.Login(ctx, code, verifier); err != nil {
					return err
				}
				printStatus(cmd, a.manager.Snapshot())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "authorization code from the redirect")
	cmd.Flags().StringVar(&verifier, "verifier", "", "PKCE code verifier printed by authorize")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("verifier")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.settle(ctx); err != nil {
					return err
				}
				printStatus(cmd, a.manager.Snapshot())
				return nil
			})
		},
	}
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print the current access token, renewing it if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.settle(ctx); err != nil {
					return err
				}
				token := a.manager.CurrentAccessToken()
				if token == "" {
					return apperrors.ErrNotLoggedIn
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Renew the access token now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.settle(ctx); err != nil {
					return err
				}
				if !a.manager.IsLoggedIn() {
					return apperrors.ErrNotLoggedIn
				}

				a.drainEvents()
				if err := a.manager.RefreshNow(ctx); err != nil {
					return err
				}
				for {
					select {
					case ev, ok := <-a.events:
						if !ok {
							return apperrors.ErrManagerClosed
						}
						switch ev.State {
						case session.LoggedIn:
							printStatus(cmd, a.manager.Snapshot())
							return nil
						case session.LoggedOut:
							if ev.Err == nil {
								return apperrors.ErrNotLoggedIn
							}
							return apperrors.Wrapf(ev.Err, "refresh")
						}
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			})
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and delete the stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.settle(ctx); err != nil {
					return err
				}
				if err := a.manager.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}

func newRegisterCmd() *cobra.Command {
	var platform, pushToken string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a device push token for the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := devicereg.ParsePlatform(platform)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.settle(ctx); err != nil {
					return err
				}
				id, err := a.manager.RegisterDevice(ctx, p, pushToken)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered device %s\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "IOS or ANDROID")
	cmd.Flags().StringVar(&pushToken, "push-token", "", "push token issued by APNs or FCM")
	_ = cmd.MarkFlagRequired("platform")
	_ = cmd.MarkFlagRequired("push-token")
	return cmd
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the session renewed and print every state change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			displayAppname(cfg.GetAppName())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			printStatus(cmd, a.manager.Snapshot())
			for {
				select {
				case ev, ok := <-a.events:
					if !ok {
						return nil
					}
					printEvent(cmd, ev)
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
}

func printStatus(cmd *cobra.Command, snap session.Snapshot) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "state:         %s\n", snap.State)
	if snap.State == session.LoggedOut {
		return
	}
	if snap.Identity.UserID != "" {
		fmt.Fprintf(out, "user:          %s (%s, %s)\n", snap.Identity.UserID, snap.Identity.Username, snap.Identity.Role)
	}
	fmt.Fprintf(out, "expires at:    %s\n", snap.ExpiresAt.Local().Format(time.RFC3339))
	fmt.Fprintf(out, "refresh token: %t\n", snap.HasRefreshToken)
	fmt.Fprintf(out, "device:        %t\n", snap.Registered)
}

func printEvent(cmd *cobra.Command, ev session.Event) {
	line := fmt.Sprintf("%s %s -> %s (%s)", time.Now().Format(time.Kitchen), ev.Previous, ev.State, ev.Reason)
	if ev.Err != nil {
		kind := "rejected"
		if ev.Transient() {
			kind = "unreachable"
		}
		line += ": provider " + kind + ", please log in again"
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
}
