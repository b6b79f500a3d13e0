package ndef

import (
	"fmt"
	"net/url"
	"strings"
)

// uriPrefixes is the NFC Forum URI Record Type Definition's abbreviation
// table, longest prefix first so greedy matching picks the most specific
// code.
var uriPrefixes = []struct {
	prefix string
	code   byte
}{
	{prefix: "https://www.", code: 0x02},
	{prefix: "http://www.", code: 0x01},
	{prefix: "https://", code: 0x04},
	{prefix: "http://", code: 0x03},
}

// BuildURIMessage encodes rawURL as a single NFC Forum well-known URI
// record, prefixed with its 2-byte NLEN header. WriteMessage writes its own
// NLEN header, so it takes the message without those two bytes (msg[2:]).
func BuildURIMessage(rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("ndef: invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("ndef: URL must be absolute")
	}

	prefixCode := byte(0x00)
	uri := rawURL
	for _, p := range uriPrefixes {
		if strings.HasPrefix(rawURL, p.prefix) {
			prefixCode = p.code
			uri = rawURL[len(p.prefix):]
			break
		}
	}

	payloadLen := 1 + len(uri) // prefix code + URI
	if payloadLen > 255 {
		return nil, fmt.Errorf("ndef: URI too long")
	}
	recordLen := 4 + payloadLen // header(3) + type(1) + payload
	totalLen := 2 + recordLen   // NLEN(2) + record
	if totalLen > 0xFFFF {
		return nil, fmt.Errorf("ndef: message too long")
	}

	msg := make([]byte, totalLen)
	msg[0] = byte(recordLen >> 8)
	msg[1] = byte(recordLen)
	msg[2] = 0xD1 // TNF=0x01 well-known, MB=1, ME=1, SR=1
	msg[3] = 0x01 // type length
	msg[4] = byte(payloadLen)
	msg[5] = 0x55 // type 'U' (URI)
	msg[6] = prefixCode
	copy(msg[7:], uri)
	return msg, nil
}

// ParseURIRecord is the inverse of BuildURIMessage's record portion:
// given the NLEN-prefixed message BuildURIMessage returns, it reconstructs
// the full URI. ReadMessage returns the record without the NLEN header.
// Only single well-known URI records are supported.
func ParseURIRecord(message []byte) (string, error) {
	if len(message) < 9 {
		return "", fmt.Errorf("ndef: message too short")
	}
	recordLen := int(message[0])<<8 | int(message[1])
	if len(message) < 2+recordLen {
		return "", fmt.Errorf("ndef: message shorter than declared NLEN")
	}
	if message[2] != 0xD1 || message[3] != 0x01 || message[5] != 0x55 {
		return "", fmt.Errorf("ndef: not a single well-known URI record")
	}
	payloadLen := int(message[4])
	prefixCode := message[6]
	uri := string(message[7 : 7+payloadLen-1])

	for _, p := range uriPrefixes {
		if p.code == prefixCode {
			return p.prefix + uri, nil
		}
	}
	return uri, nil
}
