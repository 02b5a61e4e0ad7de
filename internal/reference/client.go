package reference

import (
	"context"
	"fmt"
	"time"

	"github.com/beevik/ntp"
	"github.com/maximewewer/gps-clock/pkg/logger"
	"github.com/maximewewer/gps-clock/pkg/ratelimit"
)

// Querier queries one reference server
type Querier interface {
	Query(ctx context.Context, server string) (*Response, error)
}

// Response is the subset of an NTP reply used for the cross-check
type Response struct {
	Server        string
	Offset        time.Duration // reference minus local wall clock
	RTT           time.Duration
	Stratum       uint8
	ReceivedAt    time.Time
	KissCode      string
	ValidateError error
}

// Client queries NTP servers with beevik/ntp
type Client struct {
	timeout time.Duration
	version int
	limiter *ratelimit.Limiter

	query func(host string, opts ntp.QueryOptions) (*ntp.Response, error)
	wall  func() time.Time
}

// NewClient creates a client. A nil limiter disables rate limiting.
func NewClient(timeout time.Duration, version int, limiter *ratelimit.Limiter) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if version == 0 {
		version = 4
	}
	return &Client{
		timeout: timeout,
		version: version,
		limiter: limiter,
		query:   ntp.QueryWithOptions,
		wall:    time.Now,
	}
}

// Query performs a single NTP query to server
func (c *Client) Query(ctx context.Context, server string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, server); err != nil {
			return nil, fmt.Errorf("rate limit exceeded: %w", err)
		}
	}

	opts := ntp.QueryOptions{
		Timeout: c.timeout,
		Version: c.version,
	}

	type queryResult struct {
		response *ntp.Response
		err      error
	}

	// Buffered so the query goroutine never blocks after cancellation
	resultChan := make(chan queryResult, 1)

	go func() {
		resp, err := c.query(server, opts)
		resultChan <- queryResult{response: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("query context cancelled: %w", ctx.Err())
	case result := <-resultChan:
		received := c.wall()
		if result.err != nil {
			logger.Reference("query", server, map[string]interface{}{
				"error": result.err.Error(),
			})
			return nil, fmt.Errorf("ntp query to %s failed: %w", server, result.err)
		}

		r := result.response
		resp := &Response{
			Server:        server,
			Offset:        r.ClockOffset,
			RTT:           r.RTT,
			Stratum:       r.Stratum,
			ReceivedAt:    received,
			KissCode:      r.KissCode,
			ValidateError: r.Validate(),
		}

		logger.Reference("query", server, map[string]interface{}{
			"offset":  resp.Offset.Seconds(),
			"rtt":     resp.RTT.Seconds(),
			"stratum": resp.Stratum,
		})

		return resp, nil
	}
}

// Time returns the reference server's time at reception
func (r *Response) Time() time.Time {
	return r.ReceivedAt.Add(r.Offset)
}

// Suspicious reports a reply that should not be compared against
func (r *Response) Suspicious() bool {
	if r.Stratum < MinValidStratum || r.Stratum > MaxValidStratum {
		return true
	}
	if r.KissCode != "" || r.ValidateError != nil {
		return true
	}
	return r.RTT > MaxAcceptableRTT
}
