package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Inspect and change key slots",
}

var keysSettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Print the selected application's key settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect()
		if err != nil {
			return err
		}
		defer s.Close()

		settings, numKeys, err := s.ctx.GetKeySettings(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("key_settings=0x%02X num_keys=%d\n", settings, numKeys&0x0F)
		return nil
	},
}

var keysChangeCmd = &cobra.Command{
	Use:   "change <key-no> <new-key-hex> [version]",
	Short: "Change a key slot (same-slot change skips the CMAC on the response)",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyNo, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil {
			return fmt.Errorf("cmd: parse key-no: %w", err)
		}
		newKey, err := hex.DecodeString(strings.TrimSpace(args[1]))
		if err != nil {
			return fmt.Errorf("cmd: decode new key: %w", err)
		}
		version := uint64(0)
		if len(args) == 3 {
			version, err = strconv.ParseUint(args[2], 10, 8)
			if err != nil {
				return fmt.Errorf("cmd: parse version: %w", err)
			}
		}
		newKt, err := parseKeyType(keyTypeFlag())
		if err != nil {
			return err
		}

		s, err := connectAndAuthenticate(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if byte(keyNo) == s.ctx.KeyNum {
			return s.ctx.ChangeKeySame(cmd.Context(), newKey, newKt, byte(version))
		}
		return s.ctx.ChangeKey(cmd.Context(), byte(keyNo), newKey, newKt, byte(version), s.ctx.Key)
	},
}

func init() {
	keysCmd.AddCommand(keysSettingsCmd, keysChangeCmd)
	rootCmd.AddCommand(keysCmd)
}
