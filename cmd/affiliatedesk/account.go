package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/affiliates"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/users"
	"github.com/spf13/cobra"
)

var errMissingPassword = errors.New("password is required (use --password or pipe it on stdin)")

func (app *cli) newRegisterCommand() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an operator account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := passwordFrom(password, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return app.signIn(cmd.Context(), func(ctx context.Context, env *clientEnv) (users.SessionResponse, error) {
				return env.api.Register(ctx, name, email, secret)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Login email")
	cmd.Flags().StringVar(&password, "password", "", "Password (read from stdin when omitted)")
	return cmd
}

func (app *cli) newLoginCommand() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := passwordFrom(password, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return app.signIn(cmd.Context(), func(ctx context.Context, env *clientEnv) (users.SessionResponse, error) {
				return env.api.Login(ctx, email, secret)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Login email")
	cmd.Flags().StringVar(&password, "password", "", "Password (read from stdin when omitted)")
	return cmd
}

func (app *cli) newLogoutCommand() *cobra.Command {
	var purge bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer env.close()
			if err := env.session.Logout(cmd.Context(), purge); err != nil {
				return err
			}
			fmt.Fprintln(app.out, "Signed out.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "Also clear every locally stored dashboard value")
	return cmd
}

func (app *cli) signIn(ctx context.Context, call func(context.Context, *clientEnv) (users.SessionResponse, error)) error {
	env, err := app.openClient(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	response, err := call(ctx, env)
	if err != nil {
		return describeSourceError(err)
	}
	if err := env.session.Save(ctx, response.AccessToken, response.ExpiresIn, response.User); err != nil {
		return err
	}
	fmt.Fprintf(app.out, "Signed in as %s <%s>.\n", response.User.Name, response.User.Email)
	return nil
}

func passwordFrom(flagValue string, stdin io.Reader) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errMissingPassword
	}
	return line, nil
}

// describeSourceError folds field errors into the message shown on the terminal.
func describeSourceError(err error) error {
	var validationErr *affiliates.ValidationError
	if errors.As(err, &validationErr) {
		return fmt.Errorf("invalid input: %s", fieldSummary(validationErr.Fields))
	}
	var sourceErr *affiliates.SourceError
	if errors.As(err, &sourceErr) && len(sourceErr.Fields) > 0 {
		return fmt.Errorf("%s: %s", sourceErr.Message, fieldSummary(sourceErr.Fields))
	}
	return err
}
