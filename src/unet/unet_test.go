package unet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamConnectAcceptRoundtrip(t *testing.T) {
	sock := NewSocket("/tmp/test.sock", Stream)
	pending, errn := sock.Connect()
	require.Zero(t, errn, "unexpected connect error")
	require.False(t, pending.WaitReason().Lifted(), "expected a freshly queued connect to not yet be lifted")

	server, errn := sock.Accept()
	require.Zero(t, errn, "unexpected accept error")
	require.True(t, pending.WaitReason().Lifted(), "expected accept to lift the connecting thread's wait reason")

	client, dropped := pending.Ready()
	require.False(t, dropped, "expected accept to hand back a live client endpoint")
	require.NotNil(t, client)

	n, errn := server.Write([]byte("hello"))
	require.Zero(t, errn)
	require.Equal(t, 5, n)

	buf := make([]byte, 16)
	n, errn = client.Read(buf)
	require.Zero(t, errn)
	require.Equal(t, "hello", string(buf[:n]))
}

func TestAcceptOnEmptyQueueWouldBlock(t *testing.T) {
	sock := NewSocket("/tmp/test.sock", Stream)
	_, errn := sock.Accept()
	require.EqualValues(t, -22, errn, "expected EWOULDBLOCK on an empty listen queue")
}

func TestStreamReadWouldBlockWhenEmpty(t *testing.T) {
	sock := NewSocket("/tmp/test.sock", Stream)
	pending, _ := sock.Connect()
	server, _ := sock.Accept()
	client, _ := pending.Ready()

	buf := make([]byte, 4)
	_, errn := client.Read(buf)
	require.EqualValues(t, -22, errn, "expected EWOULDBLOCK on an empty connection")
	require.False(t, client.ReadWaitReason().Lifted(), "expected read wait reason to not be lifted while empty")

	server.Write([]byte("x"))
	require.True(t, client.ReadWaitReason().Lifted(), "expected read wait reason to lift once data is written")
}

func TestStreamWriteFillsThenWouldBlock(t *testing.T) {
	sock := NewSocket("/tmp/test.sock", Stream)
	pending, _ := sock.Connect()
	server, _ := sock.Accept()
	client, _ := pending.Ready()
	require.NotNil(t, client)

	big := make([]byte, pageSize)
	n, errn := server.Write(big)
	require.Zero(t, errn)
	require.Equal(t, pageSize, n)

	_, errn = server.Write([]byte("x"))
	require.EqualValues(t, -22, errn, "expected EWOULDBLOCK once the buffer is full")
	require.False(t, server.WriteWaitReason().Lifted(), "expected write wait reason to not be lifted while full")
}

func TestSeqPacketPreservesMessageBoundaries(t *testing.T) {
	sock := NewSocket("/tmp/test.seq", SeqPacket)
	pending, _ := sock.Connect()
	server, _ := sock.Accept()
	client, _ := pending.Ready()

	server.Write([]byte("first"))
	server.Write([]byte("second"))

	buf := make([]byte, 32)
	n, errn := client.Read(buf)
	require.Zero(t, errn)
	require.Equal(t, "first", string(buf[:n]))

	n, errn = client.Read(buf)
	require.Zero(t, errn)
	require.Equal(t, "second", string(buf[:n]))
}

func TestSeqPacketTooLargeMessageRejected(t *testing.T) {
	sock := NewSocket("/tmp/test.seq", SeqPacket)
	pending, _ := sock.Connect()
	server, _ := sock.Accept()
	_, _ = pending.Ready()

	_, errn := server.Write(make([]byte, pageSize+1))
	require.EqualValues(t, -23, errn, "expected ETOOLARGE for an oversized seqpacket message")
}

func TestConnDropWakesBothEnds(t *testing.T) {
	sock := NewSocket("/tmp/test.sock", Stream)
	pending, _ := sock.Connect()
	server, _ := sock.Accept()
	client, _ := pending.Ready()

	server.Conn().Drop()
	require.True(t, client.ReadWaitReason().Lifted())
	require.True(t, server.ReadWaitReason().Lifted())

	_, errn := client.Read(make([]byte, 4))
	require.EqualValues(t, -21, errn, "expected ECONNCLOSED from a dropped connection")
}

func TestSocketDropWakesPendingConnects(t *testing.T) {
	sock := NewSocket("/tmp/test.sock", Stream)
	pending, _ := sock.Connect()
	sock.Drop()
	require.True(t, pending.WaitReason().Lifted(), "expected dropping the socket to lift pending connects")

	client, dropped := pending.Ready()
	require.Nil(t, client)
	require.True(t, dropped)

	_, errn := sock.Connect()
	require.EqualValues(t, -21, errn, "expected further connects on a dropped socket to fail with ECONNCLOSED")
}

func TestBindTableRejectsDuplicateName(t *testing.T) {
	tbl := NewBindTable()
	a := NewSocket("/tmp/a", Stream)
	b := NewSocket("/tmp/a", Stream)

	require.Zero(t, tbl.Bind("/tmp/a", a), "unexpected error on first bind")
	require.EqualValues(t, -13, tbl.Bind("/tmp/a", b), "expected EEXIST on duplicate bind")

	got, errn := tbl.Lookup("/tmp/a")
	require.Zero(t, errn)
	require.Same(t, a, got, "expected lookup to return the originally bound socket")

	tbl.Unbind("/tmp/a")
	_, errn = tbl.Lookup("/tmp/a")
	require.EqualValues(t, -1, errn, "expected ENOTFOUND after unbind")
}
