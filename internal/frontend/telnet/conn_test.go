package telnet

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFilterIAC_NoIAC(t *testing.T) {
	input := []byte("hello world")
	result := FilterIAC(input)
	assert.Equal(t, input, result)
}

func TestFilterIAC_WillCommand(t *testing.T) {
	input := []byte{IAC, WILL, OptEcho, 'h', 'i'}
	result := FilterIAC(input)
	assert.Equal(t, []byte("hi"), result)
}

func TestFilterIAC_WontCommand(t *testing.T) {
	input := []byte{IAC, WONT, OptSuppressGoAhead, 'o', 'k'}
	result := FilterIAC(input)
	assert.Equal(t, []byte("ok"), result)
}

func TestFilterIAC_DoCommand(t *testing.T) {
	input := []byte{'a', IAC, DO, OptLinemode, 'b'}
	result := FilterIAC(input)
	assert.Equal(t, []byte("ab"), result)
}

func TestFilterIAC_DontCommand(t *testing.T) {
	input := []byte{IAC, DONT, OptEcho}
	result := FilterIAC(input)
	assert.Empty(t, result)
}

func TestFilterIAC_SubNegotiation(t *testing.T) {
	input := []byte{IAC, SB, 24, 0, 'x', 't', 'e', 'r', 'm', IAC, SE, 'z'}
	result := FilterIAC(input)
	assert.Equal(t, []byte("z"), result)
}

func TestFilterIAC_EscapedIAC(t *testing.T) {
	input := []byte{'a', IAC, IAC, 'b'}
	result := FilterIAC(input)
	assert.Equal(t, []byte{byte('a'), IAC, byte('b')}, result)
}

func TestFilterIAC_NOP(t *testing.T) {
	input := []byte{'x', IAC, NOP, 'y'}
	result := FilterIAC(input)
	assert.Equal(t, []byte("xy"), result)
}

func TestFilterIAC_MultipleCommands(t *testing.T) {
	input := []byte{
		IAC, WILL, OptSuppressGoAhead,
		IAC, WILL, OptEcho,
		'h', 'e', 'l', 'l', 'o',
	}
	result := FilterIAC(input)
	assert.Equal(t, []byte("hello"), result)
}

// Property: FilterIAC on input without any IAC bytes returns the input unchanged.
func TestPropertyFilterIAC_NoIACBytesPassThrough(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// Generate bytes that don't contain IAC (0xFF)
		length := rapid.IntRange(0, 200).Draw(t, "length")
		input := make([]byte, length)
		for i := range input {
			input[i] = byte(rapid.IntRange(0, 254).Draw(t, "byte"))
		}
		result := FilterIAC(input)
		assert.Equal(t, input, result, "input without IAC bytes should pass through unchanged")
	})
}

// Property: FilterIAC output length is always <= input length.
func TestPropertyFilterIAC_OutputNeverLongerThanInput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		length := rapid.IntRange(0, 200).Draw(t, "length")
		input := make([]byte, length)
		for i := range input {
			input[i] = byte(rapid.IntRange(0, 255).Draw(t, "byte"))
		}
		result := FilterIAC(input)
		assert.LessOrEqual(t, len(result), len(input),
			"filtered output should never be longer than input")
	})
}

func pipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return NewConn(server, time.Second, time.Second), client
}

func TestConn_ReadLineFiltersNegotiation(t *testing.T) {
	conn, client := pipeConn(t)
	go func() {
		_, _ = client.Write([]byte{IAC, DO, OptSuppressGoAhead})
		_, _ = client.Write([]byte("attack head\r\n"))
	}()
	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "attack head", line)
}

func TestConn_ReadLinesDeliversUntilError(t *testing.T) {
	conn, client := pipeConn(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lines := conn.ReadLines(ctx)

	go func() {
		_, _ = client.Write([]byte("fight\nflee\n"))
		_ = client.Close()
	}()

	var got []string
	var lastErr error
	for l := range lines {
		if l.Err != nil {
			lastErr = l.Err
			continue
		}
		got = append(got, l.Text)
	}
	assert.Equal(t, []string{"fight", "flee"}, got)
	assert.Error(t, lastErr)
}

func TestConn_WriteBlockNormalisesLineEndings(t *testing.T) {
	conn, client := pipeConn(t)
	go func() { _ = conn.WriteBlock("one\ntwo\r\nthree\n") }()

	r := bufio.NewReader(client)
	var sb strings.Builder
	for i := 0; i < 3; i++ {
		s, err := r.ReadString('\n')
		require.NoError(t, err)
		sb.WriteString(s)
	}
	assert.Equal(t, "one\r\ntwo\r\nthree\r\n", sb.String())
}

func TestConn_RedrawClearsLine(t *testing.T) {
	conn, client := pipeConn(t)
	go func() { _ = conn.Redraw("frame") }()

	buf := make([]byte, len(ClearLine)+len("frame"))
	_, err := io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, ClearLine+"frame", string(buf))
}

func TestConn_IDsAreUnique(t *testing.T) {
	a, _ := pipeConn(t)
	b, _ := pipeConn(t)
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}
