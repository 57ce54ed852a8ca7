package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/untoldecay/MnemoLog/internal/types"
)

// ClientVersion is stamped from the CLI version before requests are made.
var ClientVersion = "0.0.0"

const (
	defaultDialTimeout = 200 * time.Millisecond
	defaultCallTimeout = 30 * time.Second
)

// Client talks to a running daemon over its Unix socket.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
	actor   string
}

// TryConnect dials the daemon socket. Returns (nil, nil) when no daemon
// is listening, so callers can fall back to direct storage.
func TryConnect(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, defaultDialTimeout)
	if err != nil {
		return nil, nil
	}
	c := &Client{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: defaultCallTimeout,
	}
	if _, err := c.Call(OpPing, nil); err != nil {
		_ = conn.Close()
		return nil, nil
	}
	return c, nil
}

// SetActor attributes subsequent requests.
func (c *Client) SetActor(actor string) { c.actor = actor }

// SetTimeout overrides the per-call deadline.
func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

// Close closes the daemon connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Call sends one request and decodes the reply. Failed operations come
// back as typed errors matching the daemon's taxonomy.
func (c *Client) Call(operation string, args any) (*Envelope, error) {
	var rawArgs json.RawMessage
	if args != nil {
		encoded, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("failed to encode args: %w", err)
		}
		rawArgs = encoded
	}

	payload, err := json.Marshal(Request{
		Operation:     operation,
		Args:          rawArgs,
		Actor:         c.actor,
		ClientVersion: ClientVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	payload = append(payload, '\n')

	deadline := time.Now().Add(c.timeout)
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}
	if _, err := c.conn.Write(payload); err != nil {
		return nil, types.Dependencyf("daemon write failed: %v", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, types.Dependencyf("daemon read failed: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, types.Dependencyf("malformed daemon response: %v", err)
	}
	if !resp.Success {
		if resp.Error == nil {
			return nil, types.Internalf("daemon reported failure without detail")
		}
		return nil, decodeError(resp.Error)
	}
	return resp.Data, nil
}

// CallInto calls and unmarshals the resource data into out.
func (c *Client) CallInto(operation string, args, out any) error {
	env, err := c.Call(operation, args)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if env == nil || env.Resource == nil {
		return types.Internalf("operation %s returned no resource payload", operation)
	}
	if err := json.Unmarshal(env.Resource.Data, out); err != nil {
		return types.Internalf("failed to decode %s payload: %v", operation, err)
	}
	return nil
}

// decodeError rebuilds a typed error from the wire taxonomy.
func decodeError(info *ErrorInfo) error {
	return &types.Error{Kind: types.Kind(info.Kind), Message: info.Message}
}

// Shutdown asks the daemon to stop.
func (c *Client) Shutdown() error {
	_, err := c.Call(OpShutdown, nil)
	return err
}
