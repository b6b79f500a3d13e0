package wire

// Status is a normalised logical status code shared by both wire framings
// (native "91xx" and ISO SW1SW2), per spec §4.B.
type Status byte

const (
	StatusOperationOK      Status = 0x00
	StatusNoChanges        Status = 0x0C
	StatusCommandAborted    Status = 0xCA
	StatusBoundaryError     Status = 0x1C
	StatusAuthError         Status = 0xAE
	StatusLengthError       Status = 0x7E
	StatusParameterError    Status = 0x9E
	StatusPermissionDenied  Status = 0x9D
	StatusAdditionalFrame   Status = 0xAF
	StatusSignature         Status = 0x90
	StatusDuplicateError    Status = 0xDE
	StatusFileNotFound      Status = 0xF0
	StatusAppNotFound       Status = 0xA0
	StatusOutOfMemory       Status = 0x0E
	StatusIllegalCommand    Status = 0x1E
	StatusNoSuchKey         Status = 0x40
)

// ISO status words this library maps back to Status/Continue semantics.
const (
	SWSuccess = 0x9000
	SWWrongLe = 0x6C00
)

// IsNonError reports whether a status continues or terminates the exchange
// successfully (spec §4.B table): OPERATION_OK, ADDITIONAL_FRAME, SIGNATURE
// and NO_CHANGES are all non-error terminal or continuation statuses; every
// other status fails the exchange.
func (s Status) IsNonError() bool {
	switch s {
	case StatusOperationOK, StatusAdditionalFrame, StatusSignature, StatusNoChanges:
		return true
	default:
		return false
	}
}

// Continues reports whether the exchange engine must keep chaining
// (ADDITIONAL_FRAME only).
func (s Status) Continues() bool {
	return s == StatusAdditionalFrame
}

// NativeSW returns the 2-byte native status word 0x91<code>.
func (s Status) NativeSW() uint16 {
	return 0x9100 | uint16(s)
}

// StatusFromNativeByte normalises a raw native status byte into Status.
func StatusFromNativeByte(b byte) Status {
	return Status(b)
}

// StatusFromISO normalises an ISO SW1SW2 into Status. SW1=0x91 mirrors the
// native status family directly; SW=0x9000 is treated as OPERATION_OK.
func StatusFromISO(sw uint16) (Status, bool) {
	if sw == SWSuccess {
		return StatusOperationOK, true
	}
	sw1 := byte(sw >> 8)
	sw2 := byte(sw)
	if sw1 == 0x91 {
		return Status(sw2), true
	}
	return 0, false
}

func (s Status) String() string {
	switch s {
	case StatusOperationOK:
		return "OPERATION_OK"
	case StatusNoChanges:
		return "NO_CHANGES"
	case StatusCommandAborted:
		return "COMMAND_ABORTED"
	case StatusBoundaryError:
		return "BOUNDARY_ERROR"
	case StatusAuthError:
		return "AUTHENTICATION_ERROR"
	case StatusLengthError:
		return "LENGTH_ERROR"
	case StatusParameterError:
		return "PARAMETER_ERROR"
	case StatusPermissionDenied:
		return "PERMISSION_DENIED"
	case StatusAdditionalFrame:
		return "ADDITIONAL_FRAME"
	case StatusSignature:
		return "SIGNATURE"
	case StatusDuplicateError:
		return "DUPLICATE_ERROR"
	case StatusFileNotFound:
		return "FILE_NOT_FOUND"
	case StatusAppNotFound:
		return "APPLICATION_NOT_FOUND"
	case StatusOutOfMemory:
		return "OUT_OF_EEPROM_ERROR"
	case StatusNoSuchKey:
		return "NO_SUCH_KEY"
	default:
		return "UNKNOWN_STATUS"
	}
}
