package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Haku929/Amiro-sub000/internal/config"
	"github.com/Haku929/Amiro-sub000/internal/resonance"
	"github.com/Haku929/Amiro-sub000/internal/situation"
	"github.com/Haku929/Amiro-sub000/internal/slot"
	"github.com/Haku929/Amiro-sub000/internal/store"
)

// openRepo loads configuration and opens the configured store.
var openRepo = func(ctx context.Context) (store.Repository, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, store.Options{Driver: cfg.DB.Driver, Path: cfg.DB.Path, URL: cfg.DB.URL})
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "amiroctl",
		Short:        "Administer the Amiro persona store",
		SilenceUsage: true,
	}
	root.AddCommand(newSituationsCmd(), newSlotsCmd(), newMatchesCmd())
	return root
}

// withRepo runs fn against a freshly opened store and closes it afterwards.
func withRepo(cmd *cobra.Command, fn func(ctx context.Context, repo store.Repository) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	repo, err := openRepo(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = repo.Close() }()
	return fn(ctx, repo)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func newSituationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "situations",
		Short: "Manage the situation pool",
	}

	var file string
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Append situations from a YAML seed file (built-in pool when --file is empty)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			texts := situation.DefaultSituations()
			if file != "" {
				var err error
				if texts, err = situation.LoadSeedFile(file); err != nil {
					return err
				}
			}
			return withRepo(cmd, func(ctx context.Context, repo store.Repository) error {
				n, err := repo.InsertSituations(ctx, texts)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "inserted %d of %d situations\n", n, len(texts))
				return err
			})
		},
	}
	seed.Flags().StringVar(&file, "file", "", "YAML file with a top-level `situations` list")

	var date string
	today := &cobra.Command{
		Use:   "today",
		Short: "Show the three situations for a date (UTC today by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRepo(cmd, func(ctx context.Context, repo store.Repository) error {
				sel, err := situation.NewService(repo).Today(ctx, date)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sel)
			})
		},
	}
	today.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD")

	cmd.AddCommand(seed, today)
	return cmd
}

func newSlotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Inspect persona slots",
	}

	var user string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the occupied slots of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRepo(cmd, func(ctx context.Context, repo store.Repository) error {
				slots, err := slot.NewManager(repo).List(ctx, user)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), slots)
			})
		},
	}
	list.Flags().StringVar(&user, "user", "", "user ID")
	_ = list.MarkFlagRequired("user")

	cmd.AddCommand(list)
	return cmd
}

func newMatchesCmd() *cobra.Command {
	var user, limit, offset string
	cmd := &cobra.Command{
		Use:   "matches",
		Short: "Show the ranked match list of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page := resonance.ParsePage(limit, offset)
			return withRepo(cmd, func(ctx context.Context, repo store.Repository) error {
				matches, err := resonance.NewRanker(repo, repo, nil).Rank(ctx, user, page)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), matches)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user ID")
	cmd.Flags().StringVar(&limit, "limit", "", "page size (default 20, max 100)")
	cmd.Flags().StringVar(&offset, "offset", "", "page offset (default 0)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
