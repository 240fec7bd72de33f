// Package elfscan reads dynamic linking information out of ELF binaries: the
// shared libraries a file needs, the soname a library provides and the ABI
// a reference binary was built for.
package elfscan

import (
	"debug/elf"
	"io/fs"

	"github.com/glorpus-work/pkgng/pkg/errors"
)

// open opens path as an ELF file. A path that cannot be opened is an I/O
// error; anything that does not parse as ELF is a parse error.
func open(path string) (*elf.File, error) {
	f, err := elf.Open(path)
	if err == nil {
		return f, nil
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return nil, errors.IO("open", path, err)
	}
	return nil, errors.Parse("read elf", path, err)
}

// Scan returns the DT_NEEDED entries of the binary at path in file order.
// A binary without a dynamic section yields an empty list.
func Scan(path string) ([]string, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	needed, err := f.DynString(elf.DT_NEEDED)
	if err != nil {
		return nil, errors.Parse("read dynamic section", path, err)
	}
	return needed, nil
}

// Soname returns the DT_SONAME of the library at path, or "" when it has none.
func Soname(path string) (string, error) {
	f, err := open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	names, err := f.DynString(elf.DT_SONAME)
	if err != nil {
		return "", errors.Parse("read dynamic section", path, err)
	}
	if len(names) == 0 {
		return "", nil
	}
	return names[0], nil
}
