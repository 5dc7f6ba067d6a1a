package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"flagdb"
)

var (
	schemaPath string
	dbPath     string
	f1Conds    []string
	f0Conds    []string
	extraCols  []string
	showSQL    bool
	limit      int
)

var ddlCmd = &cobra.Command{
	Use:   "ddl",
	Short: "Print CREATE TABLE for a schema file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := flagdb.LoadSchema(schemaPath)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.DDL())
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put <key> [column.flag...]",
	Short: "Store a row with the listed flags on and every other flag off.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(false)
		if err != nil {
			return err
		}
		defer db.Close()

		on := map[string][]string{}
		for _, arg := range args[1:] {
			parts := strings.SplitN(arg, ".", 2)
			if len(parts) != 2 {
				return errors.Errorf("%q is not column.flag", arg)
			}
			on[parts[0]] = append(on[parts[0]], parts[1])
		}
		rec := flagdb.Record{}
		for col, names := range on {
			c := db.Table().Column(col)
			if c == nil {
				return errors.Wrapf(flagdb.ErrUnknownColumn, "%q", col)
			}
			if rec[col], err = c.Value(names...); err != nil {
				return err
			}
		}
		if err := db.Put([]byte(args[0]), rec); err != nil {
			return err
		}
		return db.Close()
	},
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the flags of one row.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(true)
		if err != nil {
			return err
		}
		defer db.Close()
		r, err := db.Get([]byte(args[0]))
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), db.Table(), r)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove one row.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(false)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Delete([]byte(args[0])); err != nil {
			return err
		}
		return db.Close()
	},
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Print rows whose flags are in the requested states.",
	Long: `
Print rows whose flags are in the requested states.

--f1 column:a,b keeps rows where a and b are both on, --f0 column:c keeps rows
where c is off. Repeated conditions are ANDed. --extras column adds one boolean
field per flag of the column.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := flagdb.LoadSchema(schemaPath)
		if err != nil {
			return err
		}
		var db *flagdb.DB
		if !showSQL {
			if db, err = openDB(true); err != nil {
				return err
			}
			defer db.Close()
		}
		var where []flagdb.Expr
		for _, cond := range f1Conds {
			e, err := parseCond(t, cond, true)
			if err != nil {
				return err
			}
			where = append(where, e)
		}
		for _, cond := range f0Conds {
			e, err := parseCond(t, cond, false)
			if err != nil {
				return err
			}
			where = append(where, e)
		}
		var extras []*flagdb.Named
		for _, col := range extraCols {
			c := t.Column(col)
			if c == nil {
				return errors.Wrapf(flagdb.ErrUnknownColumn, "%q", col)
			}
			prefix := ""
			if len(extraCols) > 1 {
				prefix = col + "_"
			}
			extras = append(extras, flagdb.ExtrasPrefixed(c, prefix)...)
		}

		if showSQL {
			fmt.Fprintln(cmd.OutOrStdout(), t.SelectSQL(where, extras, limit))
			return nil
		}
		rows, err := db.Query().Where(where...).Select(extras...).Limit(limit).Rows()
		if err != nil {
			return err
		}
		for _, r := range rows {
			if err := printResult(cmd.OutOrStdout(), t, r); err != nil {
				return err
			}
		}
		return nil
	},
}

func openDB(readOnly bool) (*flagdb.DB, error) {
	t, err := flagdb.LoadSchema(schemaPath)
	if err != nil {
		return nil, err
	}
	opts := *flagdb.DefaultOptions
	opts.ReadOnly = readOnly
	return flagdb.Open(dbPath, 0644, t, &opts)
}

// parseCond turns "column:a,b" into a flag predicate.
func parseCond(t *flagdb.Table, cond string, target bool) (flagdb.Expr, error) {
	parts := strings.SplitN(cond, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, errors.Errorf("%q is not column:flag[,flag...]", cond)
	}
	c := t.Column(parts[0])
	if c == nil {
		return nil, errors.Wrapf(flagdb.ErrUnknownColumn, "%q", parts[0])
	}
	return flagdb.Predicate(c, target, strings.Split(parts[1], ",")...)
}

func printResult(w io.Writer, t *flagdb.Table, r *flagdb.Result) error {
	fmt.Fprintf(w, "%s", r.Key)
	for _, c := range t.Columns() {
		v, err := r.Flags(c.Name())
		if err != nil {
			return err
		}
		raw, _ := r.Raw(c.Name())
		fmt.Fprintf(w, "\t%s=%d %s", c.Name(), raw, v)
	}
	for _, f := range r.Fields {
		if f.Type == flagdb.TypeBool {
			fmt.Fprintf(w, "\t%s=%t", f.Name, f.Bool())
		} else {
			fmt.Fprintf(w, "\t%s=%d", f.Name, f.Value)
		}
	}
	fmt.Fprintln(w)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{ddlCmd, putCmd, getCmd, deleteCmd, queryCmd} {
		c.Flags().StringVar(&schemaPath, "schema", "", "TOML schema file")
		_ = c.MarkFlagRequired("schema")
	}
	for _, c := range []*cobra.Command{putCmd, getCmd, deleteCmd, queryCmd} {
		c.Flags().StringVar(&dbPath, "db", "flags.fdb", "data file")
	}
	queryCmd.Flags().StringArrayVar(&f1Conds, "f1", nil, "column:flags that must all be on")
	queryCmd.Flags().StringArrayVar(&f0Conds, "f0", nil, "column:flags that must all be off")
	queryCmd.Flags().StringArrayVar(&extraCols, "extras", nil, "column whose flags are added as fields")
	queryCmd.Flags().BoolVar(&showSQL, "sql", false, "print the SQL instead of running the query")
	queryCmd.Flags().IntVar(&limit, "limit", 0, "maximum number of rows")
	RootCmd.AddCommand(ddlCmd, putCmd, getCmd, deleteCmd, queryCmd)
}
