package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/affiliates"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/apiclient"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/config"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/dashboard"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/logging"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/session"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/viewmodel"
	"go.uber.org/zap"
)

const loginHint = "Session expired or missing; run `affiliatedesk login` to sign in."

// errSignedOut is returned after the navigator has already told the operator to log in.
var errSignedOut = errors.New("not signed in")

// clientEnv is the wiring shared by the commands that talk to the API.
type clientEnv struct {
	config    config.ClientConfig
	logger    *zap.Logger
	session   *session.Session
	api       *apiclient.Client
	navigator *terminalNavigator
}

func (app *cli) openClient(ctx context.Context) (*clientEnv, error) {
	clientConfig, err := config.LoadClient(app.viper)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLoggerWithEncoding(clientConfig.LogLevel, clientConfig.LogEncoding)
	if err != nil {
		return nil, err
	}
	current, err := session.Open(ctx, clientConfig.SessionPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	api, err := apiclient.New(apiclient.Config{
		BaseURL: clientConfig.APIBaseURL,
		Tokens:  current,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	return &clientEnv{
		config:    clientConfig,
		logger:    logger,
		session:   current,
		api:       api,
		navigator: &terminalNavigator{out: app.out},
	}, nil
}

func (env *clientEnv) close() {
	if err := env.session.Close(); err != nil {
		env.logger.Debug("failed to close session store", zap.Error(err))
	}
	_ = env.logger.Sync()
}

func (env *clientEnv) affiliateList() (*viewmodel.AffiliateList, error) {
	return viewmodel.New(viewmodel.Config{
		Source:    env.api,
		Session:   env.session,
		Navigator: env.navigator,
		Logger:    env.logger,
		PageSize:  env.config.PageSize,
	})
}

func (env *clientEnv) dashboardLoader() (*dashboard.Loader, error) {
	return dashboard.NewLoader(dashboard.LoaderConfig{
		Source:    env.api,
		Session:   env.session,
		Navigator: env.navigator,
		Logger:    env.logger,
	})
}

// explain turns a load failure into the error reported by the command.
func (env *clientEnv) explain(err error) error {
	if err == nil {
		return nil
	}
	if env.navigator.redirected || errors.Is(err, viewmodel.ErrNotAuthenticated) || affiliates.IsUnauthorized(err) {
		return errSignedOut
	}
	return err
}

// terminalNavigator stands in for page navigation: a redirect to the login route prints a hint.
type terminalNavigator struct {
	out        io.Writer
	redirected bool
}

func (n *terminalNavigator) Redirect(route string) {
	n.redirected = true
	if route == viewmodel.LoginRoute {
		fmt.Fprintln(n.out, loginHint)
		return
	}
	fmt.Fprintf(n.out, "Continue at %s\n", route)
}
