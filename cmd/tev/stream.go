package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/unixtransport"

	"github.com/tevkit/tev"
	"github.com/tevkit/tev/tevweb"
)

type streamConfig struct {
	*rootConfig

	uri           string
	categories    []string
	recvBuf       int
	sendBuf       int
	retryInterval time.Duration
}

func (cfg *streamConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		ShortName: 'u',
		LongName:  "uri",
		Value:     ffval.NewValue(&cfg.uri),
		Usage:     "stream URI, e.g. http://localhost:8002/stream (required)",
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName: 'c',
		LongName:  "category",
		Value:     ffval.NewUniqueList(&cfg.categories),
		Usage:     "category to stream (repeatable, required)",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "recvbuf",
		Value:    ffval.NewValueDefault(&cfg.recvBuf, 100),
		Usage:    "local receive buffer size",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "sendbuf",
		Value:    ffval.NewValueDefault(&cfg.sendBuf, 100),
		Usage:    "remote send buffer size",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "retry",
		Value:    ffval.NewValueDefault(&cfg.retryInterval, 1*time.Second),
		Usage:    "stream connection retry interval",
	})
}

func (cfg *streamConfig) Exec(ctx context.Context, args []string) error {
	if cfg.uri == "" {
		return fmt.Errorf("-u, --uri is required")
	}
	if len(cfg.categories) == 0 {
		return fmt.Errorf("-c, --category is required")
	}

	// Allow http+unix:// stream URIs.
	if transport, ok := http.DefaultTransport.(*http.Transport); ok {
		unixtransport.Register(transport)
	}

	eventc := make(chan *tev.Event, cfg.recvBuf)

	client := &tevweb.StreamClient{
		URI:           cfg.uri,
		Categories:    cfg.categories,
		RemoteBuffer:  cfg.sendBuf,
		RetryInterval: cfg.retryInterval,
		OnStats: func(stats tevweb.StreamStats) {
			cfg.debug.Printf("stream stats: sends %d, drops %d", stats.Sends, stats.Drops)
		},
	}

	var g run.Group

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			cfg.info.Printf("streaming %v from %s", cfg.categories, cfg.uri)
			return client.Stream(ctx, eventc)
		}, func(error) {
			cancel()
		})
	}

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			enc := json.NewEncoder(cfg.stdout)
			for {
				select {
				case ev := <-eventc:
					if err := enc.Encode(ev); err != nil {
						return err
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}, func(error) {
			cancel()
		})
	}

	return g.Run()
}
