package collector

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

const (
	a2sInfoPayload   = "\xff\xff\xff\xffTSource Engine Query\x00"
	a2sInfoReply     = 0x49
	a2sChallengeID   = 0x41
	a2sMaxResponse   = 1400
	defaultA2STimout = 10 * time.Second
)

// A2SInfo is the live server state returned by an A2S_INFO query
type A2SInfo struct {
	Name       string
	Map        string
	Game       string
	Players    int
	MaxPlayers int
	Bots       int
}

// A2SClient queries the game server's Steam query port via UDP
type A2SClient struct {
	timeout time.Duration
}

// NewA2SClient creates a new A2S UDP client with a bounded query timeout
func NewA2SClient(timeout time.Duration) *A2SClient {
	if timeout == 0 {
		timeout = defaultA2STimout
	}
	return &A2SClient{timeout: timeout}
}

// QueryInfo sends an A2S_INFO request and parses the reply. Servers may
// respond with a challenge first; the request is then repeated with the
// challenge appended.
func (c *A2SClient) QueryInfo(address string) (*A2SInfo, error) {
	conn, err := net.DialTimeout("udp", address, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", address, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err := conn.Write([]byte(a2sInfoPayload)); err != nil {
		return nil, fmt.Errorf("sending query: %w", err)
	}

	buf := make([]byte, a2sMaxResponse)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	// Challenge handshake: resend the query with the 4-byte challenge
	if n >= 9 && buf[4] == a2sChallengeID {
		challenge := buf[5:9]
		if _, err := conn.Write(append([]byte(a2sInfoPayload), challenge...)); err != nil {
			return nil, fmt.Errorf("sending challenge response: %w", err)
		}
		n, err = conn.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
	}

	return parseInfoResponse(buf[:n])
}

// parseInfoResponse decodes an A2S_INFO reply packet
func parseInfoResponse(data []byte) (*A2SInfo, error) {
	if len(data) < 6 || binary.LittleEndian.Uint32(data[:4]) != 0xffffffff {
		return nil, fmt.Errorf("invalid response header")
	}
	if data[4] != a2sInfoReply {
		return nil, fmt.Errorf("unexpected response type 0x%02x", data[4])
	}

	r := &byteReader{data: data, pos: 6} // skip header, type and protocol bytes

	info := &A2SInfo{}
	var err error
	if info.Name, err = r.cstring(); err != nil {
		return nil, fmt.Errorf("reading server name: %w", err)
	}
	if info.Map, err = r.cstring(); err != nil {
		return nil, fmt.Errorf("reading map: %w", err)
	}
	if _, err = r.cstring(); err != nil { // folder
		return nil, fmt.Errorf("reading folder: %w", err)
	}
	if info.Game, err = r.cstring(); err != nil {
		return nil, fmt.Errorf("reading game: %w", err)
	}
	if err = r.skip(2); err != nil { // app id
		return nil, fmt.Errorf("reading app id: %w", err)
	}

	players, err := r.byte()
	if err != nil {
		return nil, fmt.Errorf("reading player count: %w", err)
	}
	maxPlayers, err := r.byte()
	if err != nil {
		return nil, fmt.Errorf("reading max players: %w", err)
	}
	bots, err := r.byte()
	if err != nil {
		return nil, fmt.Errorf("reading bot count: %w", err)
	}

	info.Players = int(players)
	info.MaxPlayers = int(maxPlayers)
	info.Bots = int(bots)
	return info, nil
}

// byteReader walks an A2S packet
type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) cstring() (string, error) {
	start := r.pos
	for r.pos < len(r.data) {
		if r.data[r.pos] == 0 {
			s := string(r.data[start:r.pos])
			r.pos++
			return s, nil
		}
		r.pos++
	}
	return "", fmt.Errorf("unterminated string")
}

func (r *byteReader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("truncated packet")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) skip(n int) error {
	if r.pos+n > len(r.data) {
		return fmt.Errorf("truncated packet")
	}
	r.pos += n
	return nil
}
