package desfire

import (
	"context"
	"fmt"

	"github.com/go-desfire/desfire/pkg/desfire/channel"
	"github.com/go-desfire/desfire/pkg/desfire/wire"
)

// FileType identifies the on-card file structure (spec §4.F CreateFile
// variants).
type FileType int

const (
	FileStandard FileType = iota
	FileBackup
	FileValue
	FileLinearRecord
	FileCyclicRecord
)

// AccessRights packs the four 4-bit key-number fields DESFire stores for
// every file: read, write, read&write, and change-access-rights. 0x0E
// means "free access", 0x0F means "deny".
type AccessRights struct {
	Read          byte
	Write         byte
	ReadWrite     byte
	ChangeAccess  byte
}

// Encode packs AccessRights into its 2-byte wire form (spec §4.F: access
// rights are two bytes, four nibbles).
func (a AccessRights) Encode() []byte {
	b0 := (a.ReadWrite << 4) | a.ChangeAccess
	b1 := (a.Read << 4) | a.Write
	return []byte{b0, b1}
}

// CreateStdDataFile creates a standard (non-backed-up) data file.
func (c *Context) CreateStdDataFile(ctx context.Context, fileNo byte, commMode channel.CommMode, rights AccessRights, size uint32) error {
	if size > wire.MaxLE3 {
		return invalidArg("CreateStdDataFile", "size exceeds the 24-bit wire range")
	}
	payload := append([]byte{fileNo, commModeByte(commMode)}, rights.Encode()...)
	payload = append(payload, wire.LE3(size)...)
	_, err := c.exchange(ctx, "CreateStdDataFile", wire.InsCreateStdDataFile, payload, channel.Plain)
	return err
}

// CreateBackupFile creates a backup data file (writes are transactional,
// committed only by CommitTransaction).
func (c *Context) CreateBackupFile(ctx context.Context, fileNo byte, commMode channel.CommMode, rights AccessRights, size uint32) error {
	if size > wire.MaxLE3 {
		return invalidArg("CreateBackupFile", "size exceeds the 24-bit wire range")
	}
	payload := append([]byte{fileNo, commModeByte(commMode)}, rights.Encode()...)
	payload = append(payload, wire.LE3(size)...)
	_, err := c.exchange(ctx, "CreateBackupFile", wire.InsCreateBackupFile, payload, channel.Plain)
	return err
}

// CreateValueFile creates a value file holding a signed 32-bit balance
// bounded by [lowerLimit, upperLimit], with an optional initial limited
// credit allowance.
func (c *Context) CreateValueFile(ctx context.Context, fileNo byte, commMode channel.CommMode, rights AccessRights, lowerLimit, upperLimit, value int32, limitedCreditEnabled bool) error {
	payload := []byte{fileNo, commModeByte(commMode)}
	payload = append(payload, rights.Encode()...)
	payload = append(payload, wire.LE4(uint32(lowerLimit))...)
	payload = append(payload, wire.LE4(uint32(upperLimit))...)
	payload = append(payload, wire.LE4(uint32(value))...)
	lc := byte(0)
	if limitedCreditEnabled {
		lc = 1
	}
	payload = append(payload, lc)
	_, err := c.exchange(ctx, "CreateValueFile", wire.InsCreateValueFile, payload, channel.Plain)
	return err
}

// CreateLinearRecordFile creates a record file of fixed capacity: once
// maxRecords is reached, further WriteRecord calls fail until cleared.
func (c *Context) CreateLinearRecordFile(ctx context.Context, fileNo byte, commMode channel.CommMode, rights AccessRights, recordSize, maxRecords uint32) error {
	return c.createRecordFile(ctx, wire.InsCreateLinearFile, "CreateLinearRecordFile", fileNo, commMode, rights, recordSize, maxRecords)
}

// CreateCyclicRecordFile creates a record file that wraps: once
// maxRecords is reached, the oldest record is overwritten.
func (c *Context) CreateCyclicRecordFile(ctx context.Context, fileNo byte, commMode channel.CommMode, rights AccessRights, recordSize, maxRecords uint32) error {
	return c.createRecordFile(ctx, wire.InsCreateCyclicFile, "CreateCyclicRecordFile", fileNo, commMode, rights, recordSize, maxRecords)
}

func (c *Context) createRecordFile(ctx context.Context, ins byte, op string, fileNo byte, commMode channel.CommMode, rights AccessRights, recordSize, maxRecords uint32) error {
	if recordSize > wire.MaxLE3 || maxRecords > wire.MaxLE3 {
		return invalidArg(op, "recordSize/maxRecords exceed the 24-bit wire range")
	}
	payload := []byte{fileNo, commModeByte(commMode)}
	payload = append(payload, rights.Encode()...)
	payload = append(payload, wire.LE3(recordSize)...)
	payload = append(payload, wire.LE3(maxRecords)...)
	_, err := c.exchange(ctx, op, ins, payload, channel.Plain)
	return err
}

// DeleteFile removes a file from the selected application.
func (c *Context) DeleteFile(ctx context.Context, fileNo byte) error {
	_, err := c.exchange(ctx, "DeleteFile", wire.InsDeleteFile, []byte{fileNo}, channel.Plain)
	return err
}

// GetFileIDs returns every file number present in the selected application.
func (c *Context) GetFileIDs(ctx context.Context) ([]byte, error) {
	data, err := c.exchange(ctx, "GetFileIDs", wire.InsGetFileIDs, nil, channel.Plain)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// FileSettings describes one file's type, comm mode, access rights, and
// type-specific sizing fields returned by GetFileSettings.
type FileSettings struct {
	Type     FileType
	CommMode channel.CommMode
	Rights   AccessRights

	Size uint32 // std/backup

	LowerLimit, UpperLimit int32 // value
	LimitedCreditEnabled   bool  // value

	RecordSize, MaxRecords, CurrentRecords uint32 // linear/cyclic
}

// GetFileSettings retrieves a file's type, comm mode, access rights, and
// type-specific fields.
func (c *Context) GetFileSettings(ctx context.Context, fileNo byte) (*FileSettings, error) {
	data, err := c.exchange(ctx, "GetFileSettings", wire.InsGetFileSettings, []byte{fileNo}, channel.Plain)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, newErr(KindCardExchange, "GetFileSettings", fmt.Errorf("response too short: %d bytes", len(data)))
	}
	fs := &FileSettings{
		Type:     FileType(data[0]),
		CommMode: commModeFromByte(data[1]),
		Rights:   decodeAccessRights(data[2:4]),
	}
	rest := data[4:]
	switch fs.Type {
	case FileStandard, FileBackup:
		if len(rest) < 3 {
			return nil, newErr(KindCardExchange, "GetFileSettings", fmt.Errorf("std/backup payload too short"))
		}
		fs.Size = wire.ParseLE3(rest[:3])
	case FileValue:
		if len(rest) < 13 {
			return nil, newErr(KindCardExchange, "GetFileSettings", fmt.Errorf("value payload too short"))
		}
		fs.LowerLimit = int32(wire.ParseLE4(rest[0:4]))
		fs.UpperLimit = int32(wire.ParseLE4(rest[4:8]))
		fs.LimitedCreditEnabled = rest[12] != 0
	case FileLinearRecord, FileCyclicRecord:
		if len(rest) < 9 {
			return nil, newErr(KindCardExchange, "GetFileSettings", fmt.Errorf("record payload too short"))
		}
		fs.RecordSize = wire.ParseLE3(rest[0:3])
		fs.MaxRecords = wire.ParseLE3(rest[3:6])
		fs.CurrentRecords = wire.ParseLE3(rest[6:9])
	}
	return fs, nil
}

// ChangeFileSettings updates a file's comm mode and access rights.
func (c *Context) ChangeFileSettings(ctx context.Context, fileNo byte, commMode channel.CommMode, rights AccessRights) error {
	payload := append([]byte{fileNo, commModeByte(commMode)}, rights.Encode()...)
	_, err := c.exchange(ctx, "ChangeFileSettings", wire.InsChangeFileSettings, payload, channel.Encrypted)
	return err
}

func decodeAccessRights(b []byte) AccessRights {
	return AccessRights{
		ReadWrite:    b[0] >> 4,
		ChangeAccess: b[0] & 0x0F,
		Read:         b[1] >> 4,
		Write:        b[1] & 0x0F,
	}
}

// commModeByte/commModeFromByte translate between channel.CommMode and the
// on-wire comm-mode byte stored in file settings (0=Plain,1=MAC,3=Encrypted
// per spec §4.F; 2 is reserved).
func commModeByte(m channel.CommMode) byte {
	switch m {
	case channel.Plain:
		return 0x00
	case channel.MAC:
		return 0x01
	case channel.Encrypted:
		return 0x03
	default:
		return 0x00
	}
}

func commModeFromByte(b byte) channel.CommMode {
	switch b {
	case 0x01:
		return channel.MAC
	case 0x03:
		return channel.Encrypted
	default:
		return channel.Plain
	}
}
