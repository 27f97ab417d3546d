package http

import (
	"bufio"
	"bytes"
	"io"
	"net"
	nethttp "net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendResponseReadByClient(t *testing.T) {
	res := &Response{Status: StatusOK}
	res.Headers.Set("x-test", "yes")
	res.SetPayload([]byte("ok"))

	raw := AppendResponse(nil, '1', res)
	assert.Equal(t, "HTTP/1.1 200 OK\r\nx-test: yes\r\n\r\nok", string(raw))

	parsed, err := nethttp.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	require.NoError(t, err)
	defer parsed.Body.Close()

	assert.Equal(t, 200, parsed.StatusCode)
	assert.Equal(t, "yes", parsed.Header.Get("X-Test"))
	body, err := io.ReadAll(parsed.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestAppendResponseVariants(t *testing.T) {
	assert.Empty(t, AppendResponse(nil, '1', Drop()))
	assert.Equal(t, "HTTP/1.0 404 Not Found\r\n\r\n", string(AppendResponse(nil, '0', FromStatus(StatusNotFound))))
	assert.Equal(t, "HTTP/1.1 200 OK\r\n\r\n", string(AppendResponse(nil, '1', EmptyResponse())))

	upgrade := &Response{Status: StatusSwitchingProtocols, Kind: PayloadUpgrade, Body: []byte("ignored")}
	upgrade.Headers.Set("upgrade", "websocket")
	assert.Equal(t, "HTTP/1.1 101 Switching Protocols\r\nupgrade: websocket\r\n\r\n",
		string(AppendResponse(nil, '1', upgrade)))
}

func TestHTTP1ConnRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	conn := HTTP1{}.Accept(server)

	received := make(chan []byte, 1)
	go func() {
		client.Write([]byte("GET /hello HTTP/1.0\r\nHost: a\r\n\r\n"))
		all, _ := io.ReadAll(client)
		received <- all
	}()

	result := conn.Parse()
	require.Equal(t, ParseComplete, result.Outcome)
	assert.Equal(t, "/hello", result.Request.Path)

	require.NoError(t, conn.Respond(FromText(StatusOK, "hi")))
	require.NoError(t, conn.Disconnect())

	assert.Equal(t, "HTTP/1.0 200 OK\r\ncontent-type: text/plain\r\n\r\nhi", string(<-received))
}

func TestHTTP1ConnErrorBeforeVersion(t *testing.T) {
	server, client := net.Pipe()
	conn := NewHTTP1Conn(server, 0)

	received := make(chan []byte, 1)
	go func() {
		client.Write([]byte("PUT / HTTP/1.1\r\n\r\n"))
		all, _ := io.ReadAll(client)
		received <- all
	}()

	result := conn.Parse()
	require.Equal(t, ParseError, result.Outcome)

	require.NoError(t, conn.Respond(FromStatus(result.Status)))
	require.NoError(t, conn.Disconnect())

	assert.Equal(t, "HTTP/1.1 405 Method Not Allowed\r\n\r\n", string(<-received))
}

func TestHTTP1ConnDropWritesNothing(t *testing.T) {
	server, client := net.Pipe()
	conn := NewHTTP1Conn(server, 0)

	received := make(chan []byte, 1)
	go func() {
		all, _ := io.ReadAll(client)
		received <- all
	}()

	require.NoError(t, conn.Respond(Drop()))
	require.NoError(t, conn.Disconnect())
	assert.Empty(t, <-received)
}

func TestRemoteIP(t *testing.T) {
	assert.Equal(t, "10.0.0.1", remoteIP(&net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 80}).String())
	assert.Nil(t, remoteIP(nil))
}
