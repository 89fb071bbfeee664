// Package claw talks to the local automation process over its control socket.
// The protocol is line-delimited JSON: one request line out, one response line
// back, nothing streamed.
package claw

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	ErrNoAck    = errors.New("claw: no acknowledgement before timeout")
	ErrRefused  = errors.New("claw: send refused")
	ErrBadReply = errors.New("claw: malformed response line")
)

// request is the only frame the bridge ever writes: steer the running agent
// with a new message.
type request struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Mode    string `json:"mode"`
}

type response struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Client dials the control socket fresh for every send. The automation
// process owns the socket's lifetime; holding a long-lived connection would
// just turn its restarts into our errors.
type Client struct {
	socketPath string
	timeout    time.Duration
}

func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{socketPath: socketPath, timeout: timeout}
}

// Send delivers one message to the automation process and waits for its
// acknowledgement line. A missing or late ack is a failure: the caller must
// leave the originating inbox message un-acked so the broker redelivers it.
func (c *Client) Send(message string) error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf("claw: dial %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("claw: set deadline: %w", err)
	}

	line, err := json.Marshal(&request{Type: "send", Message: message, Mode: "steer"})
	if err != nil {
		return fmt.Errorf("claw: encode request: %w", err)
	}
	line = append(line, '\n')
	if _, err := conn.Write(line); err != nil {
		return fmt.Errorf("claw: write: %w", err)
	}

	reader := bufio.NewReader(conn)
	reply, err := reader.ReadBytes('\n')
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return ErrNoAck
		}
		return fmt.Errorf("claw: read response: %w", err)
	}

	var resp response
	if err := json.Unmarshal(reply, &resp); err != nil {
		return fmt.Errorf("%w: %v", ErrBadReply, err)
	}
	if resp.Type != "response" || resp.Command != "send" {
		return fmt.Errorf("%w: type=%q command=%q", ErrBadReply, resp.Type, resp.Command)
	}
	if !resp.Success {
		if resp.Error != "" {
			return fmt.Errorf("%w: %s", ErrRefused, resp.Error)
		}
		return ErrRefused
	}
	return nil
}
