package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (app *cli) newDashboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the KPI overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer env.close()

			loader, err := env.dashboardLoader()
			if err != nil {
				return err
			}
			overview, err := loader.Load(cmd.Context())
			if err != nil {
				return env.explain(err)
			}
			if overview.User.ID != "" {
				if err := env.session.SetUser(cmd.Context(), overview.User); err != nil {
					env.logger.Debug("failed to refresh stored profile", zap.Error(err))
				}
			}
			renderOverview(app.out, overview)
			return nil
		},
	}
}
