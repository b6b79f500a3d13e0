package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/go-desfire/desfire/pkg/desfire"
	"github.com/go-desfire/desfire/pkg/desfire/channel"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List and read files within the selected application",
}

var filesListCmd = &cobra.Command{
	Use:   "list <aid-hex>",
	Short: "Select an application and list its file IDs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		aid, err := strconv.ParseUint(args[0], 16, 32)
		if err != nil {
			return fmt.Errorf("cmd: parse aid: %w", err)
		}
		s, err := connect()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.ctx.SelectApplication(cmd.Context(), uint32(aid)); err != nil {
			return err
		}
		ids, err := s.ctx.GetFileIDs(cmd.Context())
		if err != nil {
			return err
		}

		t := newTable("FILES")
		t.AppendHeader(table.Row{"File no", "Type", "Comm mode", "Size/records"})
		for _, id := range ids {
			fs, err := s.ctx.GetFileSettings(cmd.Context(), id)
			if err != nil {
				return err
			}
			t.AppendRow(table.Row{id, fileTypeName(fs.Type), commModeName(fs.CommMode), fileSizeSummary(fs)})
		}
		t.Render()
		return nil
	},
}

var filesReadCmd = &cobra.Command{
	Use:   "read <aid-hex> <file-no> <offset> <length>",
	Short: "Read a standard/backup data file",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		aid, err := strconv.ParseUint(args[0], 16, 32)
		if err != nil {
			return err
		}
		fileNo, err := strconv.ParseUint(args[1], 10, 8)
		if err != nil {
			return err
		}
		offset, err := strconv.ParseUint(args[2], 10, 32)
		if err != nil {
			return err
		}
		length, err := strconv.ParseUint(args[3], 10, 32)
		if err != nil {
			return err
		}

		s, err := connectAndAuthenticate(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.ctx.SelectApplication(cmd.Context(), uint32(aid)); err != nil {
			return err
		}
		data, err := s.ctx.ReadData(cmd.Context(), byte(fileNo), uint32(offset), uint32(length), channel.Encrypted)
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(data))
		return nil
	},
}

func fileTypeName(t desfire.FileType) string {
	switch t {
	case desfire.FileStandard:
		return "standard"
	case desfire.FileBackup:
		return "backup"
	case desfire.FileValue:
		return "value"
	case desfire.FileLinearRecord:
		return "linear-record"
	case desfire.FileCyclicRecord:
		return "cyclic-record"
	default:
		return "unknown"
	}
}

func commModeName(m channel.CommMode) string {
	switch m {
	case channel.Plain:
		return "plain"
	case channel.MAC:
		return "mac"
	case channel.Encrypted:
		return "encrypted"
	default:
		return "unknown"
	}
}

func fileSizeSummary(fs *desfire.FileSettings) string {
	switch fs.Type {
	case desfire.FileStandard, desfire.FileBackup:
		return fmt.Sprintf("%d bytes", fs.Size)
	case desfire.FileValue:
		return fmt.Sprintf("%d..%d", fs.LowerLimit, fs.UpperLimit)
	case desfire.FileLinearRecord, desfire.FileCyclicRecord:
		return fmt.Sprintf("%d/%d records", fs.CurrentRecords, fs.MaxRecords)
	default:
		return ""
	}
}

func init() {
	filesCmd.AddCommand(filesListCmd, filesReadCmd)
	rootCmd.AddCommand(filesCmd)
}
