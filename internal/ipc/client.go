package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
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
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.call("Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submit queues a file for identification.
func (c *Client) Submit(path string, rescan bool) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.call("Submit", SubmitRequest{Path: path, Rescan: rescan}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobStatus returns a job with its history and stored result.
func (c *Client) JobStatus(id string) (*JobStatusResponse, error) {
	var resp JobStatusResponse
	if err := c.call("JobStatus", JobStatusRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobList returns jobs optionally filtered by statuses.
func (c *Client) JobList(statuses []string) (*JobListResponse, error) {
	var resp JobListResponse
	if err := c.call("JobList", JobListRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobCancel cancels a queued or running job.
func (c *Client) JobCancel(id string) (*JobCancelResponse, error) {
	var resp JobCancelResponse
	if err := c.call("JobCancel", JobCancelRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Rescan triggers an eligibility rescan.
func (c *Client) Rescan() (*RescanResponse, error) {
	var resp RescanResponse
	if err := c.call("Rescan", RescanRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CachePrune drops expired entries from the daemon's lookup cache.
func (c *Client) CachePrune() (*CacheResponse, error) {
	var resp CacheResponse
	if err := c.call("CachePrune", CacheRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CacheClear empties the daemon's lookup cache.
func (c *Client) CacheClear() (*CacheResponse, error) {
	var resp CacheResponse
	if err := c.call("CacheClear", CacheRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Result returns the stored identification result for a path.
func (c *Client) Result(path string) (*ResultResponse, error) {
	var resp ResultResponse
	if err := c.call("Result", ResultRequest{Path: path}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.call("DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
