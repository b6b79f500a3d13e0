package cmd

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List, create and delete applications",
}

var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every AID on the PICC",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect()
		if err != nil {
			return err
		}
		defer s.Close()

		aids, err := s.ctx.GetAIDList(cmd.Context())
		if err != nil {
			return err
		}
		t := newTable("APPLICATIONS")
		t.AppendHeader(table.Row{"AID"})
		for _, aid := range aids {
			t.AppendRow(table.Row{fmt.Sprintf("%06X", aid)})
		}
		t.Render()
		return nil
	},
}

var appsCreateCmd = &cobra.Command{
	Use:   "create <aid-hex> <key-settings> <num-keys>",
	Short: "Create a new application",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		aid, err := strconv.ParseUint(args[0], 16, 32)
		if err != nil {
			return fmt.Errorf("cmd: parse aid: %w", err)
		}
		settings, err := strconv.ParseUint(args[1], 0, 8)
		if err != nil {
			return fmt.Errorf("cmd: parse key-settings: %w", err)
		}
		numKeys, err := strconv.ParseUint(args[2], 10, 8)
		if err != nil {
			return fmt.Errorf("cmd: parse num-keys: %w", err)
		}
		kt, err := parseKeyType(keyTypeFlag())
		if err != nil {
			return err
		}

		s, err := connectAndAuthenticate(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		return s.ctx.CreateApplication(cmd.Context(), uint32(aid), byte(settings), byte(numKeys), kt)
	},
}

var appsDeleteCmd = &cobra.Command{
	Use:   "delete <aid-hex>",
	Short: "Delete an application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		aid, err := strconv.ParseUint(args[0], 16, 32)
		if err != nil {
			return fmt.Errorf("cmd: parse aid: %w", err)
		}
		s, err := connectAndAuthenticate(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		return s.ctx.DeleteApplication(cmd.Context(), uint32(aid))
	},
}

// keyTypeFlag reads --key-type via viper so subcommands don't each re-parse it.
func keyTypeFlag() string {
	v := viper.GetString("key-type")
	if v == "" {
		v = "aes"
	}
	return v
}

func init() {
	appsCmd.AddCommand(appsListCmd, appsCreateCmd, appsDeleteCmd)
	rootCmd.AddCommand(appsCmd)
}
