package ipc

import (
	"errors"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"vidscribe/internal/api"
)

// dialTimeout bounds how long the CLI waits for an absent daemon.
const dialTimeout = 2 * time.Second

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	err := c.client.Call(serviceName+"."+method, req, resp)
	var serverErr rpc.ServerError
	if errors.As(err, &serverErr) {
		return api.DecodeError(string(serverErr))
	}
	return err
}

// Submit starts a transcription job for path and returns its ID.
func (c *Client) Submit(path string) (string, error) {
	var resp SubmitResponse
	if err := c.call("Submit", SubmitRequest{Path: path}, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// Cancel requests cancellation of job id.
func (c *Client) Cancel(id string) error {
	var resp CancelResponse
	return c.call("Cancel", CancelRequest{JobID: id}, &resp)
}

// State returns the current snapshot of job id.
func (c *Client) State(id string) (*api.Job, error) {
	var resp StateResponse
	if err := c.call("State", StateRequest{JobID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

// Progress fetches progress events after since, waiting up to wait for new
// ones when the batch would otherwise be empty.
func (c *Client) Progress(id string, since uint64, wait time.Duration) (*api.ProgressResponse, error) {
	var resp ProgressResponse
	req := ProgressRequest{JobID: id, Since: since, WaitMillis: int(wait / time.Millisecond)}
	if err := c.call("Progress", req, &resp); err != nil {
		return nil, err
	}
	return &resp.ProgressResponse, nil
}

// LastTranscript returns the most recent transcript, or nil when none exists.
func (c *Client) LastTranscript() (*api.Transcript, error) {
	var resp LastTranscriptResponse
	if err := c.call("LastTranscript", LastTranscriptRequest{}, &resp); err != nil {
		return nil, err
	}
	return resp.Transcript, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History lists archived jobs, newest first.
func (c *Client) History(limit int) ([]api.HistoryEntry, error) {
	var resp HistoryResponse
	if err := c.call("History", HistoryRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// LogTail returns log events from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.call("LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call("TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon to finish the active job and exit.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
