package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ooi3/ooi/internal/config"
	"github.com/ooi3/ooi/internal/handshake"
	"github.com/ooi3/ooi/internal/web"
)

// passwordEnv holds the password for non-interactive logins.
const passwordEnv = "OOI_PASSWORD"

// LoginDeps contains injectable dependencies for the login command.
// Nil fields use their default implementations.
type LoginDeps struct {
	// Authenticator runs the login.
	// Default: handshake.NewClient over the configured transport
	Authenticator func(cfg config.Config, rt http.RoundTripper, logger *slog.Logger) web.Authenticator

	// Getenv reads environment variables.
	// Default: os.Getenv
	Getenv func(string) string
}

func (d *LoginDeps) withDefaults() *LoginDeps {
	out := LoginDeps{}
	if d != nil {
		out = *d
	}
	if out.Authenticator == nil {
		out.Authenticator = func(cfg config.Config, rt http.RoundTripper, logger *slog.Logger) web.Authenticator {
			return newHandshakeClient(cfg, rt, logger)
		}
	}
	if out.Getenv == nil {
		out.Getenv = os.Getenv
	}
	return &out
}

type loginOptions struct {
	loginID string
	osapi   bool
}

func newLoginCmd(deps *LoginDeps) *cobra.Command {
	opts := &loginOptions{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in once and print the game URL",
		Long: `Run the login handshake for one account and print the resulting
flash URL, or the OSAPI URL with --osapi. The password is read from
OOI_PASSWORD or, if unset, from the first line of standard input.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runLogin(cmd.Context(), cmd, cfg, opts, deps.withDefaults())
		},
	}

	cmd.Flags().StringVar(&opts.loginID, "login-id", "", "DMM login id (e-mail address)")
	cmd.Flags().BoolVar(&opts.osapi, "osapi", false, "stop after resolving the OSAPI URL")
	_ = cmd.MarkFlagRequired("login-id")

	return cmd
}

func runLogin(ctx context.Context, cmd *cobra.Command, cfg config.Config, opts *loginOptions, deps *LoginDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := setupLogging(cfg.Log)

	password, err := readPassword(deps.Getenv, cmd.InOrStdin())
	if err != nil {
		return err
	}

	rt, err := outboundTransport(cfg)
	if err != nil {
		return err
	}
	defer rt.CloseIdleConnections()

	auth := deps.Authenticator(cfg, rt, logger)
	creds := handshake.Credentials{LoginID: opts.loginID, Password: password}

	if opts.osapi {
		osapiURL, err := auth.ResolveOSAPI(ctx, creds)
		if err != nil {
			return errors.New(handshake.PublicMessage(err))
		}
		cmd.Println(osapiURL)
		return nil
	}

	result, err := auth.ResolveFlash(ctx, creds)
	if err != nil {
		return errors.New(handshake.PublicMessage(err))
	}
	cmd.Printf("world:     %d (%s)\n", result.WorldID, result.WorldIP)
	cmd.Println("flash_url:", result.FlashURL)
	return nil
}

func readPassword(getenv func(string) string, stdin io.Reader) (string, error) {
	if pw := getenv(passwordEnv); pw != "" {
		return pw, nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", fmt.Errorf("no password: set %s or pipe it on stdin", passwordEnv)
	}
	return pw, nil
}
