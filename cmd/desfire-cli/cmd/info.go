package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print PICC version, free memory and UID",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		ver, err := s.ctx.GetVersion(ctx)
		if err != nil {
			return err
		}
		free, err := s.ctx.GetFreeMem(ctx)
		if err != nil {
			return err
		}

		t := newTable("PICC INFO")
		t.AppendRow(table.Row{"Hardware vendor", fmt.Sprintf("0x%02X", ver.HardwareVendor)})
		t.AppendRow(table.Row{"Hardware type", fmt.Sprintf("0x%02X", ver.HardwareType)})
		t.AppendRow(table.Row{"Software vendor", fmt.Sprintf("0x%02X", ver.SoftwareVendor)})
		t.AppendRow(table.Row{"UID", fmt.Sprintf("%X", ver.UID)})
		t.AppendRow(table.Row{"Batch no", fmt.Sprintf("%X", ver.BatchNo)})
		t.AppendRow(table.Row{"Prod week/year", fmt.Sprintf("%02d/%02d", ver.ProdWeek, ver.ProdYear)})
		t.AppendRow(table.Row{"Free EEPROM", fmt.Sprintf("%d bytes", free)})
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
