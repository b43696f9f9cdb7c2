package pack

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"voidctl/internal/spec"
)

// minimalELF64 builds the smallest valid little-endian ELF64 binary this
// package's writer can round-trip: a null section, a ".text" section
// carrying body, and a ".shstrtab" section naming them both.
func minimalELF64(t *testing.T, body []byte) []byte {
	t.Helper()

	const (
		ehsize    = 64
		shentsize = 64
	)

	shstrtab := []byte{0x00}
	textNameOff := uint32(len(shstrtab))
	shstrtab = append(shstrtab, []byte(".text\x00")...)
	shstrtabNameOff := uint32(len(shstrtab))
	shstrtab = append(shstrtab, []byte(".shstrtab\x00")...)

	textOff := uint64(ehsize)
	shstrtabOff := textOff + uint64(len(body))
	shoff := shstrtabOff + uint64(len(shstrtab))

	buf := make([]byte, shoff)

	ident := []byte{0x7f, 'E', 'L', 'F', 2 /* ELFCLASS64 */, 1 /* little endian */, 1, 0}
	copy(buf[0:], ident)
	le := binary.LittleEndian
	le.PutUint16(buf[16:], 2)      // e_type = ET_EXEC
	le.PutUint16(buf[18:], 0x3e)   // e_machine = EM_X86_64
	le.PutUint32(buf[20:], 1)      // e_version
	le.PutUint64(buf[40:], shoff)  // e_shoff
	le.PutUint16(buf[52:], ehsize) // e_ehsize
	le.PutUint16(buf[58:], shentsize)
	le.PutUint16(buf[60:], 3) // e_shnum: null, .text, .shstrtab
	le.PutUint16(buf[62:], 2) // e_shstrndx

	copy(buf[textOff:], body)
	copy(buf[shstrtabOff:], shstrtab)

	buf = append(buf, make([]byte, 3*shentsize)...)

	writeSection := func(idx int, name uint32, typ uint32, off, size uint64) {
		base := int(shoff) + idx*shentsize
		le.PutUint32(buf[base:], name)
		le.PutUint32(buf[base+4:], typ)
		le.PutUint64(buf[base+24:], off)
		le.PutUint64(buf[base+32:], size)
		le.PutUint64(buf[base+48:], 1) // addralign
	}
	writeSection(0, 0, 0 /* SHT_NULL */, 0, 0)
	writeSection(1, textNameOff, 1 /* SHT_PROGBITS */, textOff, uint64(len(body)))
	writeSection(2, shstrtabNameOff, 3 /* SHT_STRTAB */, shstrtabOff, uint64(len(shstrtab)))

	return buf
}

func TestPackExtractRoundTrip(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "entrypoint")
	require.NoError(t, os.WriteFile(binPath, minimalELF64(t, []byte("\x90\x90\x90\x90")), 0o755))

	original := &spec.Specification{
		Entrypoints: map[string]spec.Entrypoint{
			"hello": {
				Trigger: spec.Trigger{Kind: spec.TriggerStartup},
				Args:    []spec.Argument{spec.BinaryNameArg(), spec.TrailingArg()},
			},
		},
	}

	packedPath := filepath.Join(dir, "packed")
	require.NoError(t, Pack(binPath, original, packedPath))

	got, found, err := Extract(packedPath)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, original, got)
}

func TestExtractNoSectionFound(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(binPath, minimalELF64(t, []byte("\x90\x90")), 0o755))

	_, found, err := Extract(binPath)
	require.NoError(t, err)
	require.False(t, found)
}
