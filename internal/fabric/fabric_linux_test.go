//go:build linux

package fabric

import (
	"testing"

	"github.com/stretchr/testify/require"

	"voidctl/internal/verror"
)

func TestPipePairTakeOnce(t *testing.T) {
	p, err := NewPipePair("p")
	require.NoError(t, err)

	read, err := p.TakeRead()
	require.NoError(t, err)
	require.NotNil(t, read)
	defer read.Close()

	_, err = p.TakeRead()
	var badPipe *verror.BadPipeError
	require.ErrorAs(t, err, &badPipe)
	require.Equal(t, "p", badPipe.Name)

	write, err := p.TakeWrite()
	require.NoError(t, err)
	defer write.Close()

	_, err = p.TakeWrite()
	require.ErrorAs(t, err, &badPipe)
}

func TestPipePairRoundTrip(t *testing.T) {
	p, err := NewPipePair("p")
	require.NoError(t, err)

	read, err := p.TakeRead()
	require.NoError(t, err)
	defer read.Close()

	write, err := p.TakeWrite()
	require.NoError(t, err)
	defer write.Close()

	n, err := write.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 1024)
	n, err = read.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}

func TestSocketPairWriteDup(t *testing.T) {
	s, err := NewSocketPair("s")
	require.NoError(t, err)

	w1, err := s.TakeWrite()
	require.NoError(t, err)
	defer w1.Close()

	w2, err := s.TakeWrite()
	require.NoError(t, err)
	defer w2.Close()

	require.NotEqual(t, w1.Fd(), w2.Fd())

	read, err := s.TakeRead()
	require.NoError(t, err)
	defer read.Close()

	_, err = s.TakeRead()
	var badSocket *verror.BadFileSocketError
	require.ErrorAs(t, err, &badSocket)
}
