package tevweb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bernerdschaefer/eventsource"

	"github.com/tevkit/tev"
)

// StreamClient tails events from a [StreamServer], decoding each one onto
// the caller's channel.
type StreamClient struct {
	// URI is the stream endpoint, e.g. http://host:port/stream. Required.
	URI string

	// Categories to subscribe to. Required.
	Categories []string

	// RemoteBuffer is the per-connection buffer size requested from the
	// server. Optional.
	RemoteBuffer int

	// RetryInterval between reconnect attempts. Default 1s.
	RetryInterval time.Duration

	// OnStats, if set, is invoked with each stats report from the server.
	OnStats func(StreamStats)
}

// Stream connects and forwards events to ch until ctx is canceled. The
// connection is retried from recoverable errors.
//
// The event source re-uses its request across reconnects and treats context
// cancelation as recoverable, so the request deliberately doesn't carry ctx;
// cancelation closes the source instead.
func (c *StreamClient) Stream(ctx context.Context, ch chan<- *tev.Event) error {
	if c.URI == "" {
		return fmt.Errorf("stream URI is required")
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}

	retry := c.RetryInterval
	if retry <= 0 {
		retry = 1 * time.Second
	}

	uri, err := url.Parse(c.URI)
	if err != nil {
		return fmt.Errorf("parse URI: %w", err)
	}
	query := uri.Query()
	for _, cat := range c.Categories {
		query.Add("category", cat)
	}
	if c.RemoteBuffer > 0 {
		query.Set("buf", strconv.Itoa(c.RemoteBuffer))
	}
	uri.RawQuery = query.Encode()

	req, err := http.NewRequest("GET", uri.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	es := eventsource.New(req, retry)
	go func() {
		<-ctx.Done()
		es.Close()
	}()

	for {
		sse, err := es.Read()
		if errors.Is(err, eventsource.ErrClosed) {
			return ctx.Err()
		}
		if err != nil {
			return fmt.Errorf("read server-sent event: %w", err)
		}

		switch sse.Type {
		case "event":
			var ev tev.Event
			if err := json.Unmarshal(sse.Data, &ev); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			select {
			case ch <- &ev:
			case <-ctx.Done():
				return ctx.Err()
			}

		case "stats":
			var stats StreamStats
			if err := json.Unmarshal(sse.Data, &stats); err != nil {
				return fmt.Errorf("decode stats: %w", err)
			}
			if c.OnStats != nil {
				c.OnStats(stats)
			}
		}
	}
}
