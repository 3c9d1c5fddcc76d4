package vault

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"rubysec/internal/keywrap"
)

// On-disk layout:
//
//	magic "RUBV" | version uint16 LE | key_mode byte | key_material [32] | nonce [12] | ciphertext+tag
const (
	Magic         = "RUBV"
	FormatVersion = uint16(1)
	NonceSize     = 12
	TagSize       = 16

	versionOffset  = len(Magic)
	modeOffset     = versionOffset + 2
	materialOffset = modeOffset + 1
	nonceOffset    = materialOffset + keywrap.MaterialSize

	// HeaderSize is the length of everything before the ciphertext
	HeaderSize = nonceOffset + NonceSize
)

type header struct {
	version  uint16
	mode     keywrap.Mode
	material keywrap.Material
	nonce    [NonceSize]byte
}

func (h header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, Magic)
	binary.LittleEndian.PutUint16(buf[versionOffset:], h.version)
	buf[modeOffset] = byte(h.mode)
	copy(buf[materialOffset:], h.material[:])
	copy(buf[nonceOffset:], h.nonce[:])
	return buf
}

// parseFile splits a vault file into its header and ciphertext
func parseFile(data []byte) (header, []byte, error) {
	var h header

	if len(data) < HeaderSize+TagSize {
		return h, nil, fmt.Errorf("%w: file is %d bytes, shorter than header and tag", ErrCorrupt, len(data))
	}
	if !bytes.Equal(data[:versionOffset], []byte(Magic)) {
		return h, nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}

	h.version = binary.LittleEndian.Uint16(data[versionOffset:modeOffset])
	if h.version != FormatVersion {
		return h, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.version)
	}

	h.mode = keywrap.Mode(data[modeOffset])
	if !h.mode.Valid() {
		return h, nil, fmt.Errorf("%w: unknown key mode %d", ErrCorrupt, data[modeOffset])
	}

	copy(h.material[:], data[materialOffset:nonceOffset])
	copy(h.nonce[:], data[nonceOffset:HeaderSize])

	return h, data[HeaderSize:], nil
}

// PeekMode reads only the header of the vault at path and returns its key
// mode. A missing file yields an error matching os.ErrNotExist.
func PeekMode(path string) (keywrap.Mode, error) {
	f, err := os.Open(path) // #nosec G304 -- path is from config
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf := make([]byte, HeaderSize+TagSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("failed to read vault header: %w", err)
	}
	h, _, err := parseFile(buf[:n])
	if err != nil {
		return 0, err
	}
	return h.mode, nil
}
