// Package pack embeds a specification inside a target ELF binary's section
// table, and extracts it back out, so a binary can carry its own
// specification instead of requiring an external JSON file.
package pack

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"

	"voidctl/internal/spec"
	"voidctl/internal/verror"
)

// sectionName is the ELF section the specification is stored under.
const sectionName = "void_specification"

// Pack reads binaryPath, appends a new SHT_PROGBITS section named
// "void_specification" containing a gob-encoded Specification, and writes
// the result to outPath. Every existing section is carried through
// unmodified; only the section-header table and the section-name string
// table grow to describe the new section.
func Pack(binaryPath string, specification *spec.Specification, outPath string) error {
	data, err := os.ReadFile(binaryPath)
	if err != nil {
		return verror.Syscall("read("+binaryPath+")", err)
	}

	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("pack: parse elf: %w", err)
	}
	defer ef.Close()

	shstrndx, err := readShstrndx(data, ef)
	if err != nil {
		return err
	}
	if shstrndx >= len(ef.Sections) {
		return fmt.Errorf("pack: binary has no section name string table")
	}
	oldShstrtab, err := ef.Sections[shstrndx].Data()
	if err != nil {
		return fmt.Errorf("pack: read shstrtab: %w", err)
	}

	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(specification); err != nil {
		return fmt.Errorf("pack: encode specification: %w", err)
	}

	newShstrtab := append(append([]byte{}, oldShstrtab...), []byte(sectionName+"\x00")...)
	nameOffset := uint32(len(oldShstrtab))

	out := append([]byte{}, data...)

	sectionOffset := align8(len(out))
	out = append(out, make([]byte, sectionOffset-len(out))...)
	out = append(out, payload.Bytes()...)

	shstrtabOffset := align8(len(out))
	out = append(out, make([]byte, shstrtabOffset-len(out))...)
	out = append(out, newShstrtab...)

	shtableOffset := align8(len(out))
	out = append(out, make([]byte, shtableOffset-len(out))...)

	newSection := elf.SectionHeader{
		Name:      sectionName,
		Type:      elf.SHT_PROGBITS,
		Addr:      0,
		Offset:    uint64(sectionOffset),
		Size:      uint64(payload.Len()),
		Link:      0,
		Info:      0,
		Addralign: 1,
		Entsize:   0,
	}

	if ef.Class == elf.ELFCLASS64 {
		if err := writeShtable64(&out, ef, shstrndx, nameOffset, uint64(shstrtabOffset), uint64(len(newShstrtab)), newSection); err != nil {
			return err
		}
	} else {
		if err := writeShtable32(&out, ef, shstrndx, nameOffset, uint32(shstrtabOffset), uint32(len(newShstrtab)), newSection); err != nil {
			return err
		}
	}

	if err := patchHeader(out, ef, uint64(shtableOffset), len(ef.Sections)+1); err != nil {
		return err
	}

	if err := os.WriteFile(outPath, out, 0o755); err != nil {
		return verror.Syscall("write("+outPath+")", err)
	}
	return nil
}

// Extract looks for the "void_specification" section in binaryPath and, if
// present, gob-decodes it into a Specification. found is false if the
// binary carries no such section.
func Extract(binaryPath string) (specification *spec.Specification, found bool, err error) {
	f, err := os.Open(binaryPath)
	if err != nil {
		return nil, false, verror.Syscall("open("+binaryPath+")", err)
	}
	defer f.Close()

	ef, err := elf.NewFile(f)
	if err != nil {
		return nil, false, fmt.Errorf("pack: parse elf: %w", err)
	}
	defer ef.Close()

	section := ef.Section(sectionName)
	if section == nil {
		return nil, false, nil
	}

	data, err := section.Data()
	if err != nil {
		return nil, false, fmt.Errorf("pack: read %s: %w", sectionName, err)
	}

	var out spec.Specification
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("pack: decode specification: %w", err)
	}
	return &out, true, nil
}

func align8(n int) int {
	if rem := n % 8; rem != 0 {
		return n + (8 - rem)
	}
	return n
}

// writeShtable64 appends a 64-bit section header table (every original
// section, with the shstrtab entry's offset/size updated, plus the new
// section) at the end of out.
func writeShtable64(out *[]byte, ef *elf.File, shstrndx int, shstrtabName uint32, shstrtabOff, shstrtabSize uint64, newSection elf.SectionHeader) error {
	for i, s := range ef.Sections {
		entry := elf.Section64{
			Name:      0,
			Type:      uint32(s.Type),
			Flags:     uint64(s.Flags),
			Addr:      s.Addr,
			Off:       s.Offset,
			Size:      s.Size,
			Link:      s.Link,
			Info:      s.Info,
			Addralign: s.Addralign,
			Entsize:   s.Entsize,
		}
		if i == shstrndx {
			entry.Off = shstrtabOff
			entry.Size = shstrtabSize
		}
		if err := binary.Write(sliceWriter{out}, ef.ByteOrder, entry); err != nil {
			return fmt.Errorf("pack: write section header: %w", err)
		}
	}

	newEntry := elf.Section64{
		Name:      shstrtabName,
		Type:      uint32(newSection.Type),
		Flags:     0,
		Addr:      0,
		Off:       newSection.Offset,
		Size:      newSection.Size,
		Link:      0,
		Info:      0,
		Addralign: 1,
		Entsize:   0,
	}
	return binary.Write(sliceWriter{out}, ef.ByteOrder, newEntry)
}

// writeShtable32 is writeShtable64's 32-bit counterpart.
func writeShtable32(out *[]byte, ef *elf.File, shstrndx int, shstrtabName uint32, shstrtabOff, shstrtabSize uint32, newSection elf.SectionHeader) error {
	for i, s := range ef.Sections {
		entry := elf.Section32{
			Name:      0,
			Type:      uint32(s.Type),
			Flags:     uint32(s.Flags),
			Addr:      uint32(s.Addr),
			Off:       uint32(s.Offset),
			Size:      uint32(s.Size),
			Link:      s.Link,
			Info:      s.Info,
			Addralign: uint32(s.Addralign),
			Entsize:   uint32(s.Entsize),
		}
		if i == shstrndx {
			entry.Off = shstrtabOff
			entry.Size = shstrtabSize
		}
		if err := binary.Write(sliceWriter{out}, ef.ByteOrder, entry); err != nil {
			return fmt.Errorf("pack: write section header: %w", err)
		}
	}

	newEntry := elf.Section32{
		Name:      shstrtabName,
		Type:      uint32(newSection.Type),
		Flags:     0,
		Addr:      0,
		Off:       uint32(newSection.Offset),
		Size:      uint32(newSection.Size),
		Link:      0,
		Info:      0,
		Addralign: 1,
		Entsize:   0,
	}
	return binary.Write(sliceWriter{out}, ef.ByteOrder, newEntry)
}

// patchHeader rewrites e_shoff and e_shnum in place at the start of out.
func patchHeader(out []byte, ef *elf.File, shoff uint64, shnum int) error {
	if ef.Class == elf.ELFCLASS64 {
		var hdr elf.Header64
		if err := binary.Read(bytes.NewReader(out[:binary.Size(hdr)]), ef.ByteOrder, &hdr); err != nil {
			return fmt.Errorf("pack: reread header: %w", err)
		}
		hdr.Shoff = shoff
		hdr.Shnum = uint16(shnum)

		var buf bytes.Buffer
		if err := binary.Write(&buf, ef.ByteOrder, hdr); err != nil {
			return fmt.Errorf("pack: rewrite header: %w", err)
		}
		copy(out, buf.Bytes())
		return nil
	}

	var hdr elf.Header32
	if err := binary.Read(bytes.NewReader(out[:binary.Size(hdr)]), ef.ByteOrder, &hdr); err != nil {
		return fmt.Errorf("pack: reread header: %w", err)
	}
	hdr.Shoff = uint32(shoff)
	hdr.Shnum = uint16(shnum)

	var buf bytes.Buffer
	if err := binary.Write(&buf, ef.ByteOrder, hdr); err != nil {
		return fmt.Errorf("pack: rewrite header: %w", err)
	}
	copy(out, buf.Bytes())
	return nil
}

// readShstrndx parses e_shstrndx directly out of the raw header, since
// debug/elf resolves section names internally but doesn't expose the
// string-table index itself.
func readShstrndx(data []byte, ef *elf.File) (int, error) {
	if ef.Class == elf.ELFCLASS64 {
		var hdr elf.Header64
		if err := binary.Read(bytes.NewReader(data), ef.ByteOrder, &hdr); err != nil {
			return 0, fmt.Errorf("pack: read header: %w", err)
		}
		return int(hdr.Shstrndx), nil
	}

	var hdr elf.Header32
	if err := binary.Read(bytes.NewReader(data), ef.ByteOrder, &hdr); err != nil {
		return 0, fmt.Errorf("pack: read header: %w", err)
	}
	return int(hdr.Shstrndx), nil
}

// sliceWriter adapts a *[]byte to io.Writer for binary.Write, appending
// each write to the slice it points at.
type sliceWriter struct {
	buf *[]byte
}

func (w sliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}
