package protocol

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestConnectionRoundTripsAMessage(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewConnection(clientConn, testLogger())
	server := NewConnection(serverConn, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go client.Run(ctx)
	go server.Run(ctx)

	require.NoError(t, client.Send(ctx, &FileNameMsg{Path: "hello.bin"}))

	select {
	case msg := <-server.Inbound:
		require.Equal(t, &FileNameMsg{Path: "hello.bin"}, msg)
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestConnectionHandlesMultipleFramesInOneRead(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewConnection(clientConn, testLogger())
	server := NewConnection(serverConn, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go client.Run(ctx)
	go server.Run(ctx)

	require.NoError(t, client.Send(ctx, &WeakChecksumsMsg{Checksums: []uint32{1, 2, 3}}))
	require.NoError(t, client.Send(ctx, &WeakChecksumsMsg{Checksums: []uint32{4, 5, 6}}))

	first := recvWithTimeout(t, ctx, server)
	second := recvWithTimeout(t, ctx, server)

	require.Equal(t, &WeakChecksumsMsg{Checksums: []uint32{1, 2, 3}}, first)
	require.Equal(t, &WeakChecksumsMsg{Checksums: []uint32{4, 5, 6}}, second)
}

func recvWithTimeout(t *testing.T, ctx context.Context, c *Connection) Message {
	t.Helper()
	select {
	case msg := <-c.Inbound:
		return msg
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestCleanEOFClosesInboundWithoutError(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	server := NewConnection(serverConn, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- server.Run(ctx) }()

	require.NoError(t, clientConn.Close())

	select {
	case err := <-runErrCh:
		require.NoError(t, err)
		_, open := <-server.Inbound
		require.False(t, open, "Run must close Inbound on a clean EOF")
	case <-ctx.Done():
		t.Fatal("timed out waiting for clean shutdown")
	}
}

func TestEOFWithPartialFrameIsConnectionReset(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	server := NewConnection(serverConn, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- server.Run(ctx) }()

	_, err := clientConn.Write([]byte{0, 0, 0, 10, 'a'}) // claims 10 payload bytes, sends 1
	require.NoError(t, err)
	require.NoError(t, clientConn.Close())

	select {
	case err := <-runErrCh:
		require.ErrorIs(t, err, ErrConnectionResetByPeer)
	case <-ctx.Done():
		t.Fatal("timed out waiting for connection reset")
	}
}

func TestCloseSendDrainsBufferedOutbound(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewConnection(clientConn, testLogger())
	server := NewConnection(serverConn, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go server.Run(ctx)

	// Enqueue before the I/O actor starts, then close the queue: Run must
	// still write both frames before returning.
	require.NoError(t, client.Send(ctx, &FileNameMsg{Path: "a"}))
	require.NoError(t, client.Send(ctx, &FileNameMsg{Path: "b"}))
	client.CloseSend()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- client.Run(ctx) }()

	require.Equal(t, &FileNameMsg{Path: "a"}, recvWithTimeout(t, ctx, server))
	require.Equal(t, &FileNameMsg{Path: "b"}, recvWithTimeout(t, ctx, server))

	select {
	case err := <-runErrCh:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for outbound drain")
	}
}

func TestDecodeFrameReportsIncompleteFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 10, 'a', 'b', 'c'}) // claims 10 bytes, has 3

	frame, ok := decodeFrame(&buf)
	require.False(t, ok)
	require.Nil(t, frame)
	require.Equal(t, 7, buf.Len(), "incomplete frame must not be consumed")
}

func TestDecodeFrameReturnsCompleteFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 3, 'a', 'b', 'c', 'x'}) // one 3-byte frame plus trailing byte

	frame, ok := decodeFrame(&buf)
	require.True(t, ok)
	require.Equal(t, []byte("abc"), frame)
	require.Equal(t, 1, buf.Len(), "trailing byte must remain for the next frame")
}
