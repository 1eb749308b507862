package main

import (
	"fmt"
	"io"
	"os"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries the configuration shared by every subcommand.
type cli struct {
	viper   *viper.Viper
	cfgFile string
	out     io.Writer
}

func newRootCommand(out io.Writer) *cobra.Command {
	app := &cli{viper: config.NewViper(), out: out}

	rootCmd := &cobra.Command{
		Use:          "affiliatedesk",
		Short:        "Affiliate marketing admin dashboard",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.initConfig()
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	app.setupFlags(rootCmd)

	rootCmd.AddCommand(
		app.newServeCommand(),
		app.newRegisterCommand(),
		app.newLoginCommand(),
		app.newLogoutCommand(),
		app.newDashboardCommand(),
		app.newAffiliatesCommand(),
	)
	return rootCmd
}

func (app *cli) setupFlags(cmd *cobra.Command) {
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&app.cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("api-url", defaults.GetString("api.base_url"), "Base URL of the affiliate API")
	cmd.PersistentFlags().String("session-path", defaults.GetString("session.path"), "SQLite file holding the local session")

	app.bindFlag(cmd.PersistentFlags().Lookup("log-level"), "log.level")
	app.bindFlag(cmd.PersistentFlags().Lookup("api-url"), "api.base_url")
	app.bindFlag(cmd.PersistentFlags().Lookup("session-path"), "session.path")
}

func (app *cli) bindFlag(flag *pflag.Flag, key string) {
	if err := app.viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func (app *cli) initConfig() error {
	if app.cfgFile == "" {
		return nil
	}
	app.viper.SetConfigFile(app.cfgFile)
	if err := app.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", app.cfgFile, err)
	}
	return nil
}
