package desfire

import (
	"context"
	"fmt"

	"github.com/go-desfire/desfire/pkg/desfire/channel"
	"github.com/go-desfire/desfire/pkg/desfire/wire"
)

// PiccInfo is filled from GetVersion (spec §3): two 7-byte version blocks
// (hardware, software) and a 14-byte production block, 28 bytes in all,
// which the PICC returns across three chained native frames.
type PiccInfo struct {
	HardwareVendor   byte
	HardwareType     byte
	HardwareSubtype  byte
	HardwareVersion  [2]byte
	HardwareStorage  byte
	HardwareProtocol byte

	SoftwareVendor   byte
	SoftwareType     byte
	SoftwareSubtype  byte
	SoftwareVersion  [2]byte
	SoftwareStorage  byte
	SoftwareProtocol byte

	UID        [7]byte
	BatchNo    [5]byte
	ProdWeek   byte
	ProdYear   byte
}

// FormatPICC wipes all applications and files, restoring the PICC to its
// factory-formatted state. Requires a prior PICC master key authenticate.
func (c *Context) FormatPICC(ctx context.Context) error {
	_, err := c.exchange(ctx, "FormatPICC", wire.InsFormatPICC, nil, channel.Plain)
	return err
}

// ConfigOption selects which PICC-level configuration SetConfiguration
// writes (spec §4.F; only the PICC master key may call this).
type ConfigOption byte

const (
	// ConfigPICC sets the PICC configuration byte (disable format, enable
	// random ID, disable non-ISO authenticate, ...).
	ConfigPICC ConfigOption = 0x00
	// ConfigDefaultKey replaces the PICC master key's default factory key.
	ConfigDefaultKey ConfigOption = 0x01
	// ConfigATS replaces the ATS the PICC answers with at ISO 14443-3 level.
	ConfigATS ConfigOption = 0x02
)

// SetConfiguration writes PICC-level configuration data (spec §4.F): the
// option byte selects what data means, and the whole payload is carried
// under the Encrypted comm mode like ChangeKey/ChangeKeySettings.
func (c *Context) SetConfiguration(ctx context.Context, option ConfigOption, data []byte) error {
	payload := append([]byte{byte(option)}, data...)
	_, err := c.exchange(ctx, "SetConfiguration", wire.InsSetConfiguration, payload, channel.Encrypted)
	return err
}

// GetFreeMem returns the number of free EEPROM bytes, 3-byte LE on the
// wire (spec §6 integer encodings).
func (c *Context) GetFreeMem(ctx context.Context) (uint32, error) {
	data, err := c.exchange(ctx, "GetFreeMem", wire.InsGetFreeMemory, nil, channel.Plain)
	if err != nil {
		return 0, err
	}
	if len(data) != 3 {
		return 0, newErr(KindCardExchange, "GetFreeMem", fmt.Errorf("expected 3 bytes, got %d", len(data)))
	}
	return wire.ParseLE3(data), nil
}

// GetUID returns the PICC's 7-byte unique ID. Only meaningful for cards
// configured to disclose a random ID, otherwise it returns the random ID
// currently in force. Requires an authenticated session.
func (c *Context) GetUID(ctx context.Context) ([7]byte, error) {
	var uid [7]byte
	data, err := c.exchange(ctx, "GetUID", wire.InsGetUID, nil, channel.Encrypted)
	if err != nil {
		return uid, err
	}
	if len(data) != 7 {
		return uid, newErr(KindCardExchange, "GetUID", fmt.Errorf("expected 7 bytes, got %d", len(data)))
	}
	copy(uid[:], data)
	return uid, nil
}

// GetVersion retrieves the three chained version blocks the PICC returns
// (spec §9 supplemented feature: the original implementation's GetVersion
// is not in the distilled spec's command list but is needed by any real
// provisioning flow to identify card generation before choosing an
// authentication protocol).
func (c *Context) GetVersion(ctx context.Context) (*PiccInfo, error) {
	data, err := c.exchange(ctx, "GetVersion", wire.InsGetVersion, nil, channel.Plain)
	if err != nil {
		return nil, err
	}
	if len(data) != 28 {
		return nil, newErr(KindCardExchange, "GetVersion", fmt.Errorf("expected 28 bytes across 3 chained frames, got %d", len(data)))
	}

	info := &PiccInfo{
		HardwareVendor:   data[0],
		HardwareType:     data[1],
		HardwareSubtype:  data[2],
		HardwareVersion:  [2]byte{data[3], data[4]},
		HardwareStorage:  data[5],
		HardwareProtocol: data[6],

		SoftwareVendor:   data[7],
		SoftwareType:     data[8],
		SoftwareSubtype:  data[9],
		SoftwareVersion:  [2]byte{data[10], data[11]},
		SoftwareStorage:  data[12],
		SoftwareProtocol: data[13],

		ProdWeek: data[26],
		ProdYear: data[27],
	}
	copy(info.UID[:], data[14:21])
	copy(info.BatchNo[:], data[21:26])
	return info, nil
}
