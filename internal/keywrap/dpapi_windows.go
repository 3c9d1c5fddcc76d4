//go:build windows

package keywrap

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// dpapiProtector binds blobs to the current Windows user account
type dpapiProtector struct{}

// SystemProtector returns the DPAPI-backed protector
func SystemProtector() (Protector, error) {
	return dpapiProtector{}, nil
}

func (dpapiProtector) Protect(plain []byte, description string) ([]byte, error) {
	if len(plain) == 0 {
		return nil, errors.New("nothing to protect")
	}
	name, err := windows.UTF16PtrFromString(description)
	if err != nil {
		return nil, err
	}

	in := windows.DataBlob{Size: uint32(len(plain)), Data: &plain[0]}
	var out windows.DataBlob
	if err := windows.CryptProtectData(&in, name, nil, 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out); err != nil {
		return nil, fmt.Errorf("CryptProtectData: %w", err)
	}
	return takeBlob(&out), nil
}

func (dpapiProtector) Unprotect(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty protected blob")
	}

	in := windows.DataBlob{Size: uint32(len(blob)), Data: &blob[0]}
	var out windows.DataBlob
	if err := windows.CryptUnprotectData(&in, nil, nil, 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out); err != nil {
		return nil, fmt.Errorf("CryptUnprotectData: %w", err)
	}
	return takeBlob(&out), nil
}

// takeBlob copies a DPAPI output buffer into Go memory and frees it
func takeBlob(out *windows.DataBlob) []byte {
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(out.Data))) //nolint:errcheck
	if out.Data == nil || out.Size == 0 {
		return nil
	}
	data := make([]byte, out.Size)
	copy(data, unsafe.Slice(out.Data, out.Size))
	return data
}
