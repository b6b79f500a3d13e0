package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-desfire/desfire/pkg/desfire"
	"github.com/go-desfire/desfire/pkg/desfire/channel"
	"github.com/go-desfire/desfire/pkg/desfire/provision"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Batch-provision a card from a YAML plan",
}

var provisionApplyCmd = &cobra.Command{
	Use:   "apply <plan.yaml>",
	Short: "Create the application, install its keys and lay out its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := provision.Load(args[0])
		if err != nil {
			return err
		}
		dryRun := plan.Runtime.DryRun != nil && *plan.Runtime.DryRun

		kt, err := parseKeyType(plan.KeyType)
		if err != nil {
			return err
		}
		aid, err := strconv.ParseUint(strings.TrimSpace(plan.AID), 16, 32)
		if err != nil {
			return fmt.Errorf("cmd: parse plan aid: %w", err)
		}

		s, err := connectAndAuthenticate(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		// runID ties every log line for this provisioning run together,
		// the same correlation-ID pattern the HSM server stamps on each
		// request.
		runID := uuid.NewString()
		s.ctx.Log = s.ctx.Log.With().Str("run_id", runID).Logger()

		if dryRun {
			fmt.Printf("dry-run: would create application %06X with %d keys (%s), %d key(s), %d file(s)\n",
				aid, len(plan.Keys), kt, len(plan.Keys), len(plan.Files))
			return nil
		}

		if err := s.ctx.CreateApplication(cmd.Context(), uint32(aid), byte(*plan.KeySettings), byte(len(plan.Keys)), kt); err != nil {
			return fmt.Errorf("cmd: create application: %w", err)
		}
		if err := s.ctx.SelectApplication(cmd.Context(), uint32(aid)); err != nil {
			return fmt.Errorf("cmd: select application: %w", err)
		}

		if err := applyKeys(cmd.Context(), s.ctx, plan); err != nil {
			return err
		}
		if err := applyFiles(cmd.Context(), s.ctx, plan); err != nil {
			return err
		}

		fmt.Printf("provisioned application %06X\n", aid)
		return nil
	},
}

func applyKeys(ctx context.Context, c *desfire.Context, plan *provision.Plan) error {
	for _, k := range plan.Keys {
		kt, err := parseKeyType(k.KeyType)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(k.KeyHexFile)
		if err != nil {
			return fmt.Errorf("cmd: read %s: %w", k.KeyHexFile, err)
		}
		key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return fmt.Errorf("cmd: decode %s: %w", k.KeyHexFile, err)
		}
		version := byte(0)
		if k.Version != nil {
			version = byte(*k.Version)
		}

		if byte(*k.KeyNo) == 0 {
			// Key slot 0 was just installed implicitly by CreateApplication
			// with an all-zero default; the plan's slot 0 material is never
			// sent, so slot 0 keeps that default.
			continue
		}
		zeroOld := make([]byte, kt.KeyLength())
		if err := c.ChangeKey(ctx, byte(*k.KeyNo), key, kt, version, zeroOld); err != nil {
			return fmt.Errorf("cmd: change key %d: %w", *k.KeyNo, err)
		}
	}
	return nil
}

func applyFiles(ctx context.Context, c *desfire.Context, plan *provision.Plan) error {
	for _, f := range plan.Files {
		mode := parseCommModeName(f.CommMode)
		rights := desfire.AccessRights{Read: 0x0E, Write: 0x0E, ReadWrite: 0x0E, ChangeAccess: 0x0E}
		fileNo := byte(*f.FileNo)

		switch strings.ToLower(f.Type) {
		case "std":
			if err := c.CreateStdDataFile(ctx, fileNo, mode, rights, uint32(intOr(f.Size, 0))); err != nil {
				return fmt.Errorf("cmd: create std file %d: %w", fileNo, err)
			}
		case "backup":
			if err := c.CreateBackupFile(ctx, fileNo, mode, rights, uint32(intOr(f.Size, 0))); err != nil {
				return fmt.Errorf("cmd: create backup file %d: %w", fileNo, err)
			}
		case "value":
			if err := c.CreateValueFile(ctx, fileNo, mode, rights, int32(intOr(f.LowerLimit, 0)), int32(intOr(f.UpperLimit, 0)), 0, false); err != nil {
				return fmt.Errorf("cmd: create value file %d: %w", fileNo, err)
			}
		case "linear":
			if err := c.CreateLinearRecordFile(ctx, fileNo, mode, rights, uint32(intOr(f.RecordSize, 0)), uint32(intOr(f.MaxRecords, 0))); err != nil {
				return fmt.Errorf("cmd: create linear record file %d: %w", fileNo, err)
			}
		case "cyclic":
			if err := c.CreateCyclicRecordFile(ctx, fileNo, mode, rights, uint32(intOr(f.RecordSize, 0)), uint32(intOr(f.MaxRecords, 0))); err != nil {
				return fmt.Errorf("cmd: create cyclic record file %d: %w", fileNo, err)
			}
		default:
			return fmt.Errorf("cmd: unknown file type %q for file %d", f.Type, fileNo)
		}
	}
	return nil
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func parseCommModeName(s string) channel.CommMode {
	switch strings.ToLower(s) {
	case "mac":
		return channel.MAC
	case "encrypted":
		return channel.Encrypted
	default:
		return channel.Plain
	}
}

func init() {
	provisionCmd.AddCommand(provisionApplyCmd)
	rootCmd.AddCommand(provisionCmd)
}
