package wire

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"time"
)

// ErrShortRead is returned when the peer closes before a full frame arrives.
var ErrShortRead = errors.New("short-read")

// WriteFrame writes a 4-byte big-endian length prefix followed by body.
func WriteFrame(w io.Writer, body []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadFrame reads one length-prefixed frame, enforcing deadline on conn if
// non-nil: it fails with the connection's timeout error (a net.Error whose
// Timeout() is true) after the read deadline, or ErrShortRead if the socket
// closes mid-frame.
func ReadFrame(conn net.Conn, deadline time.Duration) ([]byte, error) {
	if conn != nil && deadline > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
			return nil, err
		}
	}
	r := io.Reader(conn)
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrShortRead
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrShortRead
		}
		return nil, err
	}
	return body, nil
}

// SendRequest dials (host, port), sends one request frame, reads one
// response frame, and closes the connection: a fresh connection per call.
// Failures come back as an error Response: "no response" when the peer
// closes early or replies with an undecodable body, "timeout" when the read
// deadline passes, and the underlying error text for dial or write failures.
func SendRequest(host string, port int, action string, params map[string]interface{}, timeout time.Duration) Response {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return Err(err.Error())
	}
	defer conn.Close()

	body, err := Marshal(Request{Action: action, Params: params})
	if err != nil {
		return Err(err.Error())
	}
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return Err(err.Error())
	}
	if err := WriteFrame(conn, body); err != nil {
		return Err(err.Error())
	}

	raw, err := ReadFrame(conn, timeout)
	if err != nil {
		if err == ErrShortRead {
			return Err("no response")
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return Err("timeout")
		}
		return Err(err.Error())
	}
	var resp Response
	if err := Unmarshal(raw, &resp); err != nil {
		return Err("no response")
	}
	return resp
}
