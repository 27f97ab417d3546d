package websocket

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// OpCode represents WebSocket operation codes
type OpCode byte

const (
	OpContinuation OpCode = 0x0
	OpText         OpCode = 0x1
	OpBinary       OpCode = 0x2
	OpClose        OpCode = 0x8
	OpPing         OpCode = 0x9
	OpPong         OpCode = 0xA
)

func (op OpCode) isControl() bool {
	return op&0x8 != 0
}

const (
	defaultMaxMessageSize = 1024 * 1024
	maxControlPayload     = 125
)

var (
	ErrUnmaskedFrame   = errors.New("websocket: client frame is not masked")
	ErrReservedBits    = errors.New("websocket: reserved bits set")
	ErrMessageTooLarge = errors.New("websocket: message too large")
	ErrBadControlFrame = errors.New("websocket: malformed control frame")
)

// Frame represents a WebSocket frame
type Frame struct {
	Fin     bool
	OpCode  OpCode
	Masked  bool
	Payload []byte
}

// Message represents a complete WebSocket message
type Message struct {
	OpCode  OpCode
	Payload []byte
}

// Conn is the server side of an established WebSocket connection.
type Conn struct {
	conn    net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	writeMu sync.Mutex

	maxMessageSize int64

	closed    bool
	closeMu   sync.Mutex
	closeOnce sync.Once
}

// NewConn takes over a hijacked connection. Bytes already buffered in rw are
// read as frames.
func NewConn(conn net.Conn, rw *bufio.ReadWriter) *Conn {
	if rw == nil {
		rw = bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	}
	return &Conn{
		conn:           conn,
		reader:         rw.Reader,
		writer:         rw.Writer,
		maxMessageSize: defaultMaxMessageSize,
	}
}

func (c *Conn) SetMaxMessageSize(size int64) {
	c.maxMessageSize = size
}

// ReadMessage returns the next data message. Pings are answered and close
// frames are echoed before io.EOF is returned.
func (c *Conn) ReadMessage() (*Message, error) {
	if c.IsClosed() {
		return nil, io.EOF
	}

	var message Message
	var fragments [][]byte
	var size int64

	for {
		frame, err := c.readFrame()
		if err != nil {
			return nil, err
		}

		switch frame.OpCode {
		case OpText, OpBinary:
			message.OpCode = frame.OpCode
			if frame.Fin {
				message.Payload = frame.Payload
				return &message, nil
			}
			fragments = append(fragments[:0], frame.Payload)
			size = int64(len(frame.Payload))

		case OpContinuation:
			if fragments == nil {
				return nil, fmt.Errorf("websocket: continuation without a first frame")
			}
			size += int64(len(frame.Payload))
			if size > c.maxMessageSize {
				return nil, ErrMessageTooLarge
			}
			fragments = append(fragments, frame.Payload)
			if frame.Fin {
				message.Payload = make([]byte, 0, size)
				for _, frag := range fragments {
					message.Payload = append(message.Payload, frag...)
				}
				return &message, nil
			}

		case OpPing:
			if err := c.WriteFrame(&Frame{
				Fin:     true,
				OpCode:  OpPong,
				Payload: frame.Payload,
			}); err != nil {
				return nil, err
			}

		case OpPong:
			continue

		case OpClose:
			c.closeWith(frame.Payload)
			return nil, io.EOF

		default:
			return nil, fmt.Errorf("unknown opcode: %d", frame.OpCode)
		}
	}
}

func (c *Conn) readFrame() (*Frame, error) {
	var header [2]byte
	if _, err := io.ReadFull(c.reader, header[:]); err != nil {
		return nil, err
	}

	frame := &Frame{
		Fin:    (header[0] & 0x80) != 0,
		OpCode: OpCode(header[0] & 0x0F),
		Masked: (header[1] & 0x80) != 0,
	}

	if header[0]&0x70 != 0 {
		return nil, ErrReservedBits
	}
	if !frame.Masked {
		return nil, ErrUnmaskedFrame
	}

	payloadLen := int64(header[1] & 0x7F)
	if frame.OpCode.isControl() && (!frame.Fin || payloadLen > maxControlPayload) {
		return nil, ErrBadControlFrame
	}

	if payloadLen == 126 {
		var extLen [2]byte
		if _, err := io.ReadFull(c.reader, extLen[:]); err != nil {
			return nil, err
		}
		payloadLen = int64(binary.BigEndian.Uint16(extLen[:]))
	} else if payloadLen == 127 {
		var extLen [8]byte
		if _, err := io.ReadFull(c.reader, extLen[:]); err != nil {
			return nil, err
		}
		payloadLen = int64(binary.BigEndian.Uint64(extLen[:]))
	}

	if payloadLen < 0 || payloadLen > c.maxMessageSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, payloadLen, c.maxMessageSize)
	}

	var maskingKey [4]byte
	if _, err := io.ReadFull(c.reader, maskingKey[:]); err != nil {
		return nil, err
	}

	if payloadLen > 0 {
		frame.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(c.reader, frame.Payload); err != nil {
			return nil, err
		}
		for i := range frame.Payload {
			frame.Payload[i] ^= maskingKey[i%4]
		}
	}

	return frame, nil
}

func (c *Conn) WriteMessage(opcode OpCode, payload []byte) error {
	return c.WriteFrame(&Frame{
		Fin:     true,
		OpCode:  opcode,
		Payload: payload,
	})
}

func (c *Conn) WriteText(text string) error {
	return c.WriteMessage(OpText, []byte(text))
}

func (c *Conn) WriteFrame(frame *Frame) error {
	if c.IsClosed() {
		return io.EOF
	}
	return c.writeFrame(frame)
}

// writeFrame writes without the closed check so the close frame itself can
// go out.
func (c *Conn) writeFrame(frame *Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	firstByte := byte(frame.OpCode)
	if frame.Fin {
		firstByte |= 0x80
	}

	if err := c.writer.WriteByte(firstByte); err != nil {
		return err
	}

	payloadLen := len(frame.Payload)

	if payloadLen < 126 {
		c.writer.WriteByte(byte(payloadLen))
	} else if payloadLen < 65536 {
		c.writer.WriteByte(126)
		var lengthBytes [2]byte
		binary.BigEndian.PutUint16(lengthBytes[:], uint16(payloadLen))
		c.writer.Write(lengthBytes[:])
	} else {
		c.writer.WriteByte(127)
		var lengthBytes [8]byte
		binary.BigEndian.PutUint64(lengthBytes[:], uint64(payloadLen))
		c.writer.Write(lengthBytes[:])
	}

	if payloadLen > 0 {
		if _, err := c.writer.Write(frame.Payload); err != nil {
			return err
		}
	}

	return c.writer.Flush()
}

func (c *Conn) Ping() error {
	return c.WriteFrame(&Frame{
		Fin:    true,
		OpCode: OpPing,
	})
}

// Close sends a close frame and releases the socket.
func (c *Conn) Close() error {
	return c.closeWith(nil)
}

// closeWith echoes the peer's close status, if any, then closes.
func (c *Conn) closeWith(payload []byte) error {
	var err error
	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.closed = true
		c.closeMu.Unlock()

		if len(payload) > 2 {
			payload = payload[:2]
		}
		c.writeFrame(&Frame{
			Fin:     true,
			OpCode:  OpClose,
			Payload: payload,
		})

		err = c.conn.Close()
	})
	return err
}

func (c *Conn) IsClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func computeAcceptKey(key string) string {
	const magicGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	h := sha1.New()
	h.Write([]byte(key + magicGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
