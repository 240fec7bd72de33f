package testutil

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// ELFNote is one entry of a note section.
type ELFNote struct {
	Name string
	Type uint32
	Desc []uint32
}

// ELFSpec describes a minimal ELF image: a header, a dynamic section with its
// string table, optional note sections and the section name table.
type ELFSpec struct {
	Class   elf.Class   // ELFCLASS64 when zero
	Data    elf.Data    // ELFDATA2LSB when zero
	Machine elf.Machine // EM_X86_64 when zero
	Flags   uint32
	Needed  []string
	Soname  string
	// Static leaves out the dynamic section.
	Static bool
	Notes  []ELFNote
}

// FreeBSDNote returns the ABI tag note of a FreeBSD binary built for osVersion (e.g. 1400097).
func FreeBSDNote(osVersion uint32) ELFNote {
	return ELFNote{Name: "FreeBSD", Type: 1, Desc: []uint32{osVersion}}
}

// GNUNote returns the ABI tag note of a GNU/Linux binary requiring kernel major.minor.patch.
func GNUNote(major, minor, patch uint32) ELFNote {
	return ELFNote{Name: "GNU", Type: 1, Desc: []uint32{0, major, minor, patch}}
}

type elfSection struct {
	name      string
	typ       elf.SectionType
	data      []byte
	link      uint32
	entsize   uint64
	addralign uint64
}

type elfWriter struct {
	buf   bytes.Buffer
	order binary.ByteOrder
	is64  bool
}

func (w *elfWriter) u16(v uint16) {
	b := make([]byte, 2)
	w.order.PutUint16(b, v)
	w.buf.Write(b)
}

func (w *elfWriter) u32(v uint32) {
	b := make([]byte, 4)
	w.order.PutUint32(b, v)
	w.buf.Write(b)
}

func (w *elfWriter) word(v uint64) {
	if w.is64 {
		b := make([]byte, 8)
		w.order.PutUint64(b, v)
		w.buf.Write(b)
		return
	}
	w.u32(uint32(v))
}

func (w *elfWriter) pad(align int) {
	for w.buf.Len()%align != 0 {
		w.buf.WriteByte(0)
	}
}

// BuildELF renders spec as an ELF image.
func BuildELF(spec ELFSpec) []byte {
	if spec.Class == elf.ELFCLASSNONE {
		spec.Class = elf.ELFCLASS64
	}
	if spec.Data == elf.ELFDATANONE {
		spec.Data = elf.ELFDATA2LSB
	}
	if spec.Machine == elf.EM_NONE {
		spec.Machine = elf.EM_X86_64
	}

	w := &elfWriter{is64: spec.Class == elf.ELFCLASS64, order: binary.LittleEndian}
	if spec.Data == elf.ELFDATA2MSB {
		w.order = binary.BigEndian
	}
	ehsize, shentsize, dynentsize := 52, 40, 8
	if w.is64 {
		ehsize, shentsize, dynentsize = 64, 64, 16
	}

	sections := []elfSection{{}}
	if !spec.Static {
		dynstr := []byte{0}
		addString := func(s string) uint64 {
			off := uint64(len(dynstr))
			dynstr = append(append(dynstr, s...), 0)
			return off
		}
		dw := &elfWriter{order: w.order, is64: w.is64}
		for _, name := range spec.Needed {
			dw.word(uint64(elf.DT_NEEDED))
			dw.word(addString(name))
		}
		if spec.Soname != "" {
			dw.word(uint64(elf.DT_SONAME))
			dw.word(addString(spec.Soname))
		}
		dw.word(uint64(elf.DT_NULL))
		dw.word(0)

		sections = append(sections,
			elfSection{name: ".dynstr", typ: elf.SHT_STRTAB, data: dynstr, addralign: 1},
			elfSection{name: ".dynamic", typ: elf.SHT_DYNAMIC, data: dw.buf.Bytes(), link: 1,
				entsize: uint64(dynentsize), addralign: 8},
		)
	}
	for i, n := range spec.Notes {
		nw := &elfWriter{order: w.order}
		nw.u32(uint32(len(n.Name) + 1))
		nw.u32(uint32(4 * len(n.Desc)))
		nw.u32(n.Type)
		nw.buf.WriteString(n.Name)
		nw.buf.WriteByte(0)
		nw.pad(4)
		for _, d := range n.Desc {
			nw.u32(d)
		}
		name := ".note.tag"
		if i > 0 {
			name = ".note.extra"
		}
		sections = append(sections, elfSection{name: name, typ: elf.SHT_NOTE, data: nw.buf.Bytes(), addralign: 4})
	}

	shstrtab := []byte{0}
	nameOff := make([]uint32, len(sections)+1)
	for i := 1; i < len(sections); i++ {
		nameOff[i] = uint32(len(shstrtab))
		shstrtab = append(append(shstrtab, sections[i].name...), 0)
	}
	nameOff[len(sections)] = uint32(len(shstrtab))
	shstrtab = append(append(shstrtab, ".shstrtab"...), 0)
	sections = append(sections, elfSection{name: ".shstrtab", typ: elf.SHT_STRTAB, data: shstrtab, addralign: 1})

	// section contents follow the header
	offsets := make([]uint64, len(sections))
	body := &elfWriter{order: w.order}
	body.buf.Write(make([]byte, ehsize))
	for i := 1; i < len(sections); i++ {
		body.pad(8)
		offsets[i] = uint64(body.buf.Len())
		body.buf.Write(sections[i].data)
	}
	body.pad(8)
	shoff := uint64(body.buf.Len())

	// ELF header
	w.buf.Write([]byte{0x7f, 'E', 'L', 'F', byte(spec.Class), byte(spec.Data), byte(elf.EV_CURRENT)})
	w.buf.Write(make([]byte, 9))
	w.u16(uint16(elf.ET_DYN))
	w.u16(uint16(spec.Machine))
	w.u32(uint32(elf.EV_CURRENT))
	w.word(0)     // entry
	w.word(0)     // phoff
	w.word(shoff) // shoff
	w.u32(spec.Flags)
	w.u16(uint16(ehsize))
	if w.is64 {
		w.u16(56)
	} else {
		w.u16(32)
	}
	w.u16(0) // phnum
	w.u16(uint16(shentsize))
	w.u16(uint16(len(sections)))
	w.u16(uint16(len(sections) - 1))

	out := body.buf.Bytes()
	copy(out, w.buf.Bytes())

	sh := &elfWriter{order: w.order, is64: w.is64}
	for i, s := range sections {
		if i == 0 {
			sh.buf.Write(make([]byte, shentsize))
			continue
		}
		sh.u32(nameOff[i])
		sh.u32(uint32(s.typ))
		sh.word(0) // flags
		sh.word(0) // addr
		sh.word(offsets[i])
		sh.word(uint64(len(s.data)))
		sh.u32(s.link)
		sh.u32(0) // info
		sh.word(s.addralign)
		sh.word(s.entsize)
	}
	return append(out, sh.buf.Bytes()...)
}

// WriteELF writes the image described by spec to dir/name and returns its path.
func WriteELF(t testing.TB, dir, name string, spec ELFSpec) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, BuildELF(spec), 0o755); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
