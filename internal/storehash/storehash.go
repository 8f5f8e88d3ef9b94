// Package storehash extracts the Nix store verity hash from the kernel
// command line and derives the data and hash partitions from it.
package storehash

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// CmdlineArgName is the kernel command line parameter carrying the hash.
const CmdlineArgName = "storehash"

// PartUUIDDir is where udev links partitions by their partition UUID.
const PartUUIDDir = "/dev/disk/by-partuuid"

// The data partition UUID is the first half of the root hash, the hash
// partition UUID is the rest. The image builder lays out the partitions
// this way so the offset is fixed.
const uuidLen = 32

var ErrMalformed = errors.New("malformed storehash")

// ParseError is returned when one half of the storehash is not a partition
// UUID in its simple (unhyphenated) form.
type ParseError struct {
	// Half is either "data" or "hash"
	Half  string
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s half %q as a UUID: %v", e.Half, e.Input, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrMalformed, e.Err}
}

// Storehash is the verity root hash of the Nix store as passed on the
// kernel command line. It is kept verbatim.
type Storehash string

// FromCmdline finds the first whitespace separated token that contains
// "storehash=" and returns everything after the last '=' in it. The boolean
// is false if no such token exists.
func FromCmdline(cmdline string) (Storehash, bool) {
	for _, arg := range strings.FieldsFunc(cmdline, isSpace) {
		if !strings.Contains(arg, CmdlineArgName+"=") {
			continue
		}
		return Storehash(arg[strings.LastIndexByte(arg, '=')+1:]), true
	}
	return "", false
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// ReadCmdline returns the contents of the kernel command line source,
// usually /proc/cmdline.
func ReadCmdline(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("cannot read kernel command line: %w", err)
	}
	return string(b), nil
}

func (s Storehash) String() string {
	return string(s)
}

// DataUUID returns the hyphenated UUID of the verity data partition.
func (s Storehash) DataUUID() (string, error) {
	half := string(s)
	if len(half) > uuidLen {
		half = half[:uuidLen]
	}
	id, err := DeviceUUID(half)
	if err != nil {
		return "", &ParseError{Half: "data", Input: half, Err: err}
	}
	return id, nil
}

// HashUUID returns the hyphenated UUID of the verity hash partition.
func (s Storehash) HashUUID() (string, error) {
	var half string
	if len(s) > uuidLen {
		half = string(s[uuidLen:])
	}
	id, err := DeviceUUID(half)
	if err != nil {
		return "", &ParseError{Half: "hash", Input: half, Err: err}
	}
	return id, nil
}

// DataDevice returns the device path of the verity data partition.
func (s Storehash) DataDevice() (string, error) {
	id, err := s.DataUUID()
	if err != nil {
		return "", err
	}
	return DevicePath(id), nil
}

// HashDevice returns the device path of the verity hash partition.
func (s Storehash) HashDevice() (string, error) {
	id, err := s.HashUUID()
	if err != nil {
		return "", err
	}
	return DevicePath(id), nil
}

// DeviceUUID converts a UUID from its simple form (32 hex digits) to the
// hyphenated form udev uses for the links in /dev/disk/by-partuuid.
func DeviceUUID(s string) (string, error) {
	// uuid.Parse also accepts the hyphenated, braced and urn forms
	if len(s) != uuidLen {
		return "", fmt.Errorf("expected %d hex digits, got %d characters", uuidLen, len(s))
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// DevicePath returns the udev path of the partition with the given UUID.
func DevicePath(partUUID string) string {
	return PartUUIDDir + "/" + partUUID
}
