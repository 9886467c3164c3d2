package main

import (
	"context"
	"math/rand"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"

	"github.com/tevkit/tev"
	"github.com/tevkit/tev/tevstore"
	"github.com/tevkit/tev/tevweb"
)

type serveConfig struct {
	*rootConfig

	listenAddr    string
	categories    string
	flushInterval time.Duration
	storeSize     int
	workInterval  time.Duration
}

func (cfg *serveConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		LongName: "listen-addr",
		Value:    ffval.NewValueDefault(&cfg.listenAddr, "localhost:8002"),
		Usage:    "HTTP listen address",
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName: 'c',
		LongName:  "categories",
		Value:     ffval.NewValueDefault(&cfg.categories, "demo"),
		Usage:     "comma-separated categories to record",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "flush",
		Value:    ffval.NewValueDefault(&cfg.flushInterval, tev.DefaultFlushInterval),
		Usage:    "agent flush interval",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "store-size",
		Value:    ffval.NewValueDefault(&cfg.storeSize, tevstore.DefaultCategorySize),
		Usage:    "events retained per category",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "work-interval",
		Value:    ffval.NewValueDefault(&cfg.workInterval, 100*time.Millisecond),
		Usage:    "demo workload emit interval",
	})
}

func (cfg *serveConfig) Exec(ctx context.Context, args []string) error {
	categories := tev.ParseCategoryList(cfg.categories, []string{"demo"})

	store := tevstore.NewStore(tevstore.StoreConfig{
		CategorySize: cfg.storeSize,
	})

	agent := tev.NewAgent(tev.AgentConfig{
		Writer:        store,
		FlushInterval: cfg.flushInterval,
		OnError: func(err error) {
			cfg.info.Printf("agent write error: %v", err)
		},
	})
	defer func() {
		if err := agent.Close(); err != nil {
			cfg.info.Printf("agent close: %v", err)
		}
	}()

	tracing := tev.NewTracing(tev.TracingConfig{
		Recorder:   agent,
		Controller: agent,
	})

	if err := tracing.EnableRecording(categories, true); err != nil {
		return err
	}

	cfg.info.Printf("recording categories %v, session %s", tracing.RecordingCategories(), agent.SessionID())

	ln, err := net.Listen("tcp", cfg.listenAddr)
	if err != nil {
		return err
	}

	cfg.info.Printf("listening on %s", ln.Addr())

	httpServer := &http.Server{
		Handler: tevweb.NewServer(tracing),
	}

	var g run.Group

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	{
		g.Add(func() error {
			return httpServer.Serve(ln)
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpServer.Shutdown(ctx)
		})
	}

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return cfg.workload(ctx, tracing, categories)
		}, func(error) {
			cancel()
		})
	}

	return g.Run()
}

// workload emits a steady stream of synthetic events so that serve is
// immediately useful for demos and for exercising stream clients.
func (cfg *serveConfig) workload(ctx context.Context, tracing *tev.Tracing, categories []string) error {
	ticker := time.NewTicker(cfg.workInterval)
	defer ticker.Stop()

	var id uint64
	for {
		select {
		case <-ticker.C:
			id++
			category := categories[rand.Intn(len(categories))]

			tracing.Emit(&tev.Event{
				Type:       tev.TypeBegin,
				Name:       "work",
				ID:         id,
				Categories: []string{category},
				Args:       map[string]any{"seq": id},
			})

			if pause := int(cfg.workInterval / 4); pause > 0 {
				time.Sleep(time.Duration(rand.Intn(pause)))
			}

			tracing.Emit(&tev.Event{
				Type:       tev.TypeEnd,
				Name:       "work",
				ID:         id,
				Categories: []string{category},
			})

			tracing.Emit(&tev.Event{
				Type:       tev.TypeCount,
				Name:       "completed",
				Categories: []string{category},
				Value:      tev.Value{Number: float64(id)},
			})

			cfg.debug.Printf("emitted work %d on %s", id, category)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
