package fdset

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFDSetUnionAndOverlap(t *testing.T) {
	a := New()
	defer a.Destroy()
	b := New()
	defer b.Destroy()

	a.AddSocket(3, Read)
	b.AddSocket(4, Write)

	require.False(t, a.Overlaps(b))

	a.Union(b)
	require.True(t, a.IsSet(4))
	require.Equal(t, 2, a.Len())

	ready := New()
	defer ready.Destroy()
	ready.AddSocket(4, Write)
	require.True(t, a.Overlaps(ready))
}

func TestFDSetCopyFromAndClone(t *testing.T) {
	a := New()
	defer a.Destroy()
	a.AddFileHandle(7, Read)

	b := New()
	defer b.Destroy()
	b.CopyFrom(a)
	require.True(t, b.IsSet(7))

	c := a.Clone()
	defer c.Destroy()
	require.True(t, c.IsSet(7))

	a.Zero()
	require.Equal(t, 0, a.Len())
	require.Equal(t, 1, b.Len(), "copy must be independent of source")
}

func TestFDFromOSPipe(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	fd, err := FD(r)
	require.NoError(t, err)
	require.Positive(t, fd)
}

// TestWaitReadReady grounds scenario S2 from spec.md §8: a pipe write end
// written to must wake Wait with exactly the read end reported ready.
func TestWaitReadReady(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	rfd, err := FD(r)
	require.NoError(t, err)

	rs := New()
	defer rs.Destroy()
	rs.AddFileHandle(rfd, Read)

	_, err = w.Write([]byte{1})
	require.NoError(t, err)

	readyRS, readyWS, err := Wait(rs, nil, 2*time.Second)
	require.NoError(t, err)
	defer readyRS.Destroy()
	defer readyWS.Destroy()

	require.True(t, readyRS.IsSet(rfd))
	require.Equal(t, 0, readyWS.Len())
}

func TestWaitTimeout(t *testing.T) {
	r, _, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	rfd, err := FD(r)
	require.NoError(t, err)

	rs := New()
	defer rs.Destroy()
	rs.AddFileHandle(rfd, Read)

	start := time.Now()
	readyRS, readyWS, err := Wait(rs, nil, 30*time.Millisecond)
	require.NoError(t, err)
	defer readyRS.Destroy()
	defer readyWS.Destroy()

	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	require.Equal(t, 0, readyRS.Len())
}
