package elfscan

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/platform"
)

const (
	ntABITag = 1

	efARMNewABI   = 0x80
	efARMVFPFloat = 0x400

	efMIPSABI2   = 0x20
	efMIPSABI    = 0x0000f000
	efMIPSABIO32 = 0x00001000
)

var machines = map[elf.Machine]string{
	elf.EM_386:     "x86",
	elf.EM_X86_64:  "x86",
	elf.EM_ARM:     "arm",
	elf.EM_AARCH64: "aarch64",
	elf.EM_MIPS:    "mips",
	elf.EM_PPC:     "powerpc",
	elf.EM_PPC64:   "powerpc",
	elf.EM_SPARCV9: "sparc64",
	elf.EM_IA_64:   "ia64",
	elf.EM_RISCV:   "riscv",
}

var gnuOS = map[uint32]string{
	0: "linux",
	1: "hurd",
	2: "solaris",
	3: "kfreebsd",
}

type note struct {
	name string
	typ  uint32
	desc []byte
}

// DetectABI derives the platform ABI from the reference binary at path,
// normally /bin/sh, using its first recognised ABI tag note.
func DetectABI(path string) (platform.ABI, error) {
	f, err := open(path)
	if err != nil {
		return platform.ABI{}, err
	}
	defer f.Close()

	abi, err := abiFromNotes(f)
	if err != nil {
		return platform.ABI{}, errors.Parse("detect abi", path, err)
	}

	abi.Machine = "unknown"
	if m, ok := machines[f.Machine]; ok {
		abi.Machine = m
	}
	abi.WordSize = 32
	if f.Class == elf.ELFCLASS64 {
		abi.WordSize = 64
	}

	var flags uint32
	if f.Machine == elf.EM_ARM || f.Machine == elf.EM_MIPS {
		if flags, err = headerFlags(path, f); err != nil {
			return platform.ABI{}, err
		}
	}

	switch f.Machine {
	case elf.EM_ARM:
		abi.Endian = endian(f)
		abi.Variant = "oabi"
		if flags&efARMNewABI != 0 {
			abi.Variant = "eabi"
		}
		abi.Float = "vfp"
		if flags&efARMVFPFloat != 0 {
			abi.Float = "softfp"
		}
	case elf.EM_MIPS:
		abi.Endian = endian(f)
		switch {
		case flags&efMIPSABI2 != 0:
			abi.Variant = "n32"
		case flags&efMIPSABI == efMIPSABIO32:
			abi.Variant = "o32"
		case f.Class == elf.ELFCLASS64:
			abi.Variant = "n64"
		default:
			abi.Variant = "o32"
		}
	}
	return abi, nil
}

// headerFlags reads e_flags, which debug/elf does not expose.
func headerFlags(path string, f *elf.File) (uint32, error) {
	r, err := os.Open(path)
	if err != nil {
		return 0, errors.IO("open", path, err)
	}
	defer r.Close()

	sr := io.NewSectionReader(r, 0, 64)
	if f.Class == elf.ELFCLASS64 {
		var hdr elf.Header64
		if err := binary.Read(sr, f.ByteOrder, &hdr); err != nil {
			return 0, errors.Parse("read elf header", path, err)
		}
		return hdr.Flags, nil
	}
	var hdr elf.Header32
	if err := binary.Read(sr, f.ByteOrder, &hdr); err != nil {
		return 0, errors.Parse("read elf header", path, err)
	}
	return hdr.Flags, nil
}

func endian(f *elf.File) string {
	if f.Data == elf.ELFDATA2MSB {
		return "eb"
	}
	return "el"
}

func abiFromNotes(f *elf.File) (platform.ABI, error) {
	for _, s := range f.Sections {
		if s.Type != elf.SHT_NOTE {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return platform.ABI{}, err
		}
		notes, err := parseNotes(data, f.ByteOrder)
		if err != nil {
			return platform.ABI{}, err
		}
		for _, n := range notes {
			if abi, ok := abiFromNote(n, f.ByteOrder); ok {
				return abi, nil
			}
		}
	}
	return platform.ABI{}, fmt.Errorf("no ABI tag note")
}

func abiFromNote(n note, order binary.ByteOrder) (platform.ABI, bool) {
	if n.typ != ntABITag || len(n.desc) < 4 {
		return platform.ABI{}, false
	}
	word := func(i int) uint32 { return order.Uint32(n.desc[4*i:]) }

	switch n.name {
	case "FreeBSD", "DragonFly":
		return platform.ABI{OS: platform.NormalizeOS(n.name), Version: int(word(0) / 100000)}, true
	case "NetBSD":
		return platform.ABI{OS: "netbsd", Version: int(word(0) / 100000000)}, true
	case "GNU":
		if len(n.desc) < 8 {
			return platform.ABI{}, false
		}
		os, ok := gnuOS[word(0)]
		if !ok {
			return platform.ABI{}, false
		}
		return platform.ABI{OS: os, Version: int(word(1))}, true
	}
	return platform.ABI{}, false
}

func parseNotes(data []byte, order binary.ByteOrder) ([]note, error) {
	var notes []note
	for len(data) > 0 {
		if len(data) < 12 {
			return nil, fmt.Errorf("truncated note header")
		}
		namesz := int(order.Uint32(data[0:]))
		descsz := int(order.Uint32(data[4:]))
		typ := order.Uint32(data[8:])
		data = data[12:]

		nameEnd := align4(namesz)
		if namesz < 0 || descsz < 0 || nameEnd > len(data) || nameEnd+align4(descsz) > len(data) {
			return nil, fmt.Errorf("truncated note")
		}
		name := data[:namesz]
		if namesz > 0 && name[namesz-1] == 0 {
			name = name[:namesz-1]
		}
		notes = append(notes, note{
			name: string(name),
			typ:  typ,
			desc: data[nameEnd : nameEnd+descsz],
		})
		data = data[nameEnd+align4(descsz):]
	}
	return notes, nil
}

func align4(n int) int {
	return (n + 3) &^ 3
}
