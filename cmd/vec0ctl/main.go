// Command vec0ctl manages vec0 tables backed by a SQLite database and a
// Badger state directory.
//
//	vec0ctl exec "CREATE VIRTUAL TABLE docs USING vec0(embedding float[2])"
//	vec0ctl exec "INSERT INTO docs(rowid, embedding) VALUES (1, '[1, 0]')"
//	vec0ctl query docs --vector '[1, 0]' -k 5
//	vec0ctl stats docs
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/viant/vec0/engine"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		database   string
		badgerDir  string
	)
	root := &cobra.Command{
		Use:          "vec0ctl",
		Short:        "Manage vec0 vector tables",
		Long:         `A command-line interface for creating, querying and maintaining vec0 KNN tables.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "vec0ctl.yaml", "configuration file")
	root.PersistentFlags().StringVar(&database, "database", "", "SQLite DSN, overrides the configuration")
	root.PersistentFlags().StringVar(&badgerDir, "badger-dir", "", "Badger state directory, overrides the configuration")

	withApp := func(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			if database != "" {
				cfg.Database = database
			}
			if badgerDir != "" {
				cfg.Storage.BadgerDir = badgerDir
			}
			a, err := openApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			runErr := run(cmd, a, args)
			if err := a.Close(); err != nil && runErr == nil {
				runErr = fmt.Errorf("close: %w", err)
			}
			return runErr
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the vec0 version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				fmt.Fprintln(cmd.OutOrStdout(), engine.Version)
				return nil
			},
		},
		&cobra.Command{
			Use:   "exec <sql>...",
			Short: "Execute SQL statements in order",
			Args:  cobra.MinimumNArgs(1),
			RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
				for _, stmt := range args {
					res, err := a.db.ExecContext(cmd.Context(), stmt)
					if err != nil {
						return fmt.Errorf("exec %q: %w", stmt, err)
					}
					n, _ := res.RowsAffected()
					fmt.Fprintf(cmd.OutOrStdout(), "ok (%d rows)\n", n)
				}
				return nil
			}),
		},
		newQueryCmd(withApp),
		&cobra.Command{
			Use:   "tables",
			Short: "List persisted tables",
			Args:  cobra.NoArgs,
			RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
				names, err := a.registry.Persisted(cmd.Context(), a.database())
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), "main."+name)
				}
				return nil
			}),
		},
	)
	for _, op := range []string{"compact", "flush", "stats"} {
		root.AddCommand(&cobra.Command{
			Use:   op + " <table>",
			Short: "Run " + op + " on a vec0 table",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
				rows, err := a.admin(cmd.Context(), op, args[0])
				if err != nil {
					return err
				}
				for _, row := range rows {
					if row.Chunk >= 0 {
						fmt.Fprintf(cmd.OutOrStdout(), "%s\tchunk=%d\t%s\n", row.Op, row.Chunk, row.Value)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", row.Op, row.Value)
				}
				return nil
			}),
		})
	}
	return root
}

type hit struct {
	Rowid    int64   `json:"rowid"`
	Distance float64 `json:"distance"`
}

func newQueryCmd(withApp func(func(*cobra.Command, *app, []string) error) func(*cobra.Command, []string) error) *cobra.Command {
	var (
		column string
		vector string
		k      int
		where  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "Run a KNN query",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if vector == "" {
				return fmt.Errorf("--vector is required")
			}
			if k <= 0 {
				k = a.cfg.DefaultK
			}
			var sb strings.Builder
			fmt.Fprintf(&sb, "SELECT rowid, distance FROM %s WHERE %s MATCH ? AND k = ?", args[0], column)
			if where != "" {
				sb.WriteString(" AND (" + where + ")")
			}
			sb.WriteString(" ORDER BY distance")
			hits, err := runQuery(cmd.Context(), a, sb.String(), vector, k)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(hits)
			}
			for _, h := range hits {
				fmt.Fprintf(out, "%d\t%g\n", h.Rowid, h.Distance)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&column, "column", "embedding", "vector column to match")
	cmd.Flags().StringVar(&vector, "vector", "", "query vector as a JSON array")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of neighbors, defaults to default_k")
	cmd.Flags().StringVar(&where, "where", "", "additional SQL predicate, e.g. \"genre = 'news'\"")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func runQuery(ctx context.Context, a *app, stmt, vector string, k int) ([]hit, error) {
	rows, err := a.db.QueryContext(ctx, stmt, vector, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.Rowid, &h.Distance); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
