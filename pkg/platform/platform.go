// Package platform models the composite ABI string packages are built for,
// such as "freebsd:9:x86:64" or "freebsd:9:arm:32:el:eabi:softfp".
package platform

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// ABI is the decoded form of an architecture compatibility string.
type ABI struct {
	OS       string
	Version  int
	Machine  string
	WordSize int
	// Endian, Variant and Float are only set for ARM and MIPS.
	Endian  string
	Variant string
	Float   string
}

// String renders os:version:machine:wordsize[:endian:variant[:float]].
func (a ABI) String() string {
	parts := []string{a.OS, strconv.Itoa(a.Version), a.Machine, strconv.Itoa(a.WordSize)}
	if a.Endian != "" {
		parts = append(parts, a.Endian, a.Variant)
		if a.Float != "" {
			parts = append(parts, a.Float)
		}
	}
	return strings.Join(parts, ":")
}

// IsZero reports whether a carries no information.
func (a ABI) IsZero() bool {
	return a == ABI{}
}

// Parse decodes an ABI string produced by String.
func Parse(s string) (ABI, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 4 || len(parts) > 7 || len(parts) == 5 {
		return ABI{}, fmt.Errorf("invalid ABI string %q", s)
	}

	version, err := strconv.Atoi(parts[1])
	if err != nil {
		return ABI{}, fmt.Errorf("invalid ABI version in %q: %w", s, err)
	}
	wordSize, err := strconv.Atoi(parts[3])
	if err != nil {
		return ABI{}, fmt.Errorf("invalid ABI word size in %q: %w", s, err)
	}

	abi := ABI{
		OS:       NormalizeOS(parts[0]),
		Version:  version,
		Machine:  parts[2],
		WordSize: wordSize,
	}
	if len(parts) >= 6 {
		abi.Endian, abi.Variant = parts[4], parts[5]
	}
	if len(parts) == 7 {
		abi.Float = parts[6]
	}
	return abi, nil
}

// NormalizeOS lowercases an operating system name as found in ELF notes.
func NormalizeOS(os string) string {
	return strings.ToLower(strings.TrimSpace(os))
}

// FromRuntime guesses the ABI from the Go runtime when no reference binary can be read.
// The OS version is unknown and reported as 0.
func FromRuntime() ABI {
	abi := ABI{OS: NormalizeOS(runtime.GOOS), WordSize: 64}
	switch runtime.GOARCH {
	case "amd64":
		abi.Machine = "x86"
	case "386":
		abi.Machine, abi.WordSize = "x86", 32
	case "arm64":
		abi.Machine = "aarch64"
	case "arm":
		abi.Machine, abi.WordSize = "arm", 32
		abi.Endian, abi.Variant, abi.Float = "el", "eabi", "softfp"
	case "ppc64", "ppc64le":
		abi.Machine = "powerpc"
	case "riscv64":
		abi.Machine = "riscv"
	default:
		abi.Machine = runtime.GOARCH
	}
	return abi
}
