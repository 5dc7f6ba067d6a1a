package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"flagdb"
)

var flagNames []string

var widthCmd = &cobra.Command{
	Use:   "width <count>",
	Short: "Print the storage width for a number of flags.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Wrap(err, "flag count")
		}
		w, err := flagdb.WidthFor(n)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d byte(s) %s\n", w, w.SQLType())
		return nil
	},
}

var encodeCmd = &cobra.Command{
	Use:   "encode [flag...]",
	Short: "Print the integer with the given flags set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := flagdb.NewFlagSet(flagNames...)
		if err != nil {
			return err
		}
		v, err := fs.Value(args...)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), fs.Encode(v))
		return nil
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode <integer>",
	Short: "Print the flags held by an encoded integer.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := flagdb.NewFlagSet(flagNames...)
		if err != nil {
			return err
		}
		raw, err := strconv.ParseUint(args[0], 0, 64)
		if err != nil {
			return errors.Wrap(err, "encoded value")
		}
		fmt.Fprintln(cmd.OutOrStdout(), fs.Decode(raw))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{encodeCmd, decodeCmd} {
		c.Flags().StringSliceVar(&flagNames, "flags", nil, "comma separated flag names in bit order")
		_ = c.MarkFlagRequired("flags")
	}
	RootCmd.AddCommand(widthCmd, encodeCmd, decodeCmd)
}
