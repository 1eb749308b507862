package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/affiliates"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/viewmodel"
	"github.com/spf13/cobra"
)

var errDeleteNotConfirmed = errors.New("refusing to delete without --yes")

func (app *cli) newAffiliatesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "affiliates",
		Aliases: []string{"aff"},
		Short:   "Browse and manage affiliates",
	}
	cmd.AddCommand(
		app.newListCommand(),
		app.newCreateCommand(),
		app.newSetStatusCommand(),
		app.newDeleteCommand(),
		app.newWatchCommand(),
	)
	return cmd
}

type listOptions struct {
	search     string
	sortKey    string
	descending bool
	page       int
}

func (app *cli) newListCommand() *cobra.Command {
	var options listOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show one page of affiliates",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer env.close()

			list, err := env.affiliateList()
			if err != nil {
				return err
			}
			if err := list.Load(cmd.Context()); err != nil {
				return env.explain(err)
			}
			if err := applyListOptions(list, options); err != nil {
				return err
			}
			renderAffiliateTable(app.out, list.View(), list.Stats())
			return nil
		},
	}
	cmd.Flags().StringVar(&options.search, "search", "", "Only show affiliates whose name or email contains this text")
	cmd.Flags().StringVar(&options.sortKey, "sort", "", "Sort column: name, email, status, revenue, clicks, conversionRate, joinDate")
	cmd.Flags().BoolVar(&options.descending, "desc", false, "Sort descending")
	cmd.Flags().IntVar(&options.page, "page", 1, "Page to show")
	return cmd
}

// applyListOptions replays the flags as table interactions: search, then header clicks, then paging.
func applyListOptions(list *viewmodel.AffiliateList, options listOptions) error {
	list.SetSearchTerm(options.search)
	if options.sortKey != "" {
		key, ok := viewmodel.ParseSortKey(options.sortKey)
		if !ok {
			return fmt.Errorf("unknown sort column %q", options.sortKey)
		}
		list.SetSort(key)
		if options.descending {
			list.SetSort(key)
		}
	}
	list.SetPage(options.page)
	return nil
}

func (app *cli) newCreateCommand() *cobra.Command {
	var draft affiliates.Draft
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add an affiliate",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer env.close()

			list, err := env.affiliateList()
			if err != nil {
				return err
			}
			record, err := list.Create(cmd.Context(), draft)
			if record.ID == "" {
				return describeMutationError(env, err)
			}
			renderRecord(app.out, "Created", record)
			return env.explain(err)
		},
	}
	cmd.Flags().StringVar(&draft.Name, "name", "", "Affiliate name")
	cmd.Flags().StringVar(&draft.Email, "email", "", "Affiliate email")
	cmd.Flags().StringVar(&draft.Status, "status", string(affiliates.StatusActive), "Initial status")
	cmd.Flags().Float64Var(&draft.Revenue, "revenue", 0, "Initial revenue")
	cmd.Flags().Int64Var(&draft.Clicks, "clicks", 0, "Initial clicks")
	cmd.Flags().Float64Var(&draft.ConversionRate, "conversion-rate", 0, "Initial conversion rate in percent")
	return cmd
}

func (app *cli) newSetStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-status ID STATUS",
		Short: "Approve, suspend, or reset an affiliate to pending",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer env.close()

			list, err := env.affiliateList()
			if err != nil {
				return err
			}
			record, err := list.UpdateStatus(cmd.Context(), args[0], args[1])
			if record.ID == "" {
				return describeMutationError(env, err)
			}
			renderRecord(app.out, "Updated", record)
			return env.explain(err)
		},
	}
}

func (app *cli) newDeleteCommand() *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Remove an affiliate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer env.close()

			list, err := env.affiliateList()
			if err != nil {
				return err
			}
			err = list.Remove(cmd.Context(), args[0], confirmed)
			if errors.Is(err, viewmodel.ErrNotConfirmed) {
				return errDeleteNotConfirmed
			}
			// Only a failed reload records a list error; anything else means the delete itself failed.
			if err != nil && list.LastError() == "" && !errors.Is(err, viewmodel.ErrNotAuthenticated) {
				return describeMutationError(env, err)
			}
			fmt.Fprintf(app.out, "Deleted %s.\n", args[0])
			return env.explain(err)
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm the deletion")
	return cmd
}

func (app *cli) newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream affiliate changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer env.close()

			if !env.session.IsAuthenticated() {
				env.navigator.Redirect(viewmodel.LoginRoute)
				return errSignedOut
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintln(app.out, "Watching affiliate changes; press Ctrl+C to stop.")
			err = env.api.Watch(ctx, func(change affiliates.ChangeEvent) {
				renderChange(app.out, change)
			})
			if affiliates.IsUnauthorized(err) {
				env.session.Invalidate()
				env.navigator.Redirect(viewmodel.LoginRoute)
				return errSignedOut
			}
			return err
		},
	}
}

// describeMutationError reports a mutation the source rejected. A rejected token also ends the local session.
func describeMutationError(env *clientEnv, err error) error {
	if affiliates.IsUnauthorized(err) {
		env.session.Invalidate()
		env.navigator.Redirect(viewmodel.LoginRoute)
		return errSignedOut
	}
	return describeSourceError(err)
}
