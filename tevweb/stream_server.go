package tevweb

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bernerdschaefer/eventsource"

	"github.com/tevkit/tev"
)

// StreamServer delivers live trace events for the requested categories as
// server-sent events. For the duration of each request, it subscribes a
// listener to the facade, so the requested categories count as listened (and
// therefore enabled) while the stream is open.
//
// Query parameters: one or more category values (required), buf for the
// per-connection buffer size, and stats for the stats reporting interval.
type StreamServer struct {
	tracing *tev.Tracing
}

// NewStreamServer returns a stream server for the given facade.
func NewStreamServer(tracing *tev.Tracing) *StreamServer {
	return &StreamServer{
		tracing: tracing,
	}
}

// StreamStats count event delivery on one stream connection.
type StreamStats struct {
	Sends uint64 `json:"sends"`
	Drops uint64 `json:"drops"`
}

// ServeHTTP implements http.Handler.
func (s *StreamServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "only GET is supported", http.StatusMethodNotAllowed)
		return
	}

	if !requestExplicitlyAccepts(r, "text/event-stream") {
		http.Error(w, "request must Accept: text/event-stream", http.StatusPreconditionRequired)
		return
	}

	var (
		ctx      = r.Context()
		urlquery = r.URL.Query()
		cats     = urlquery["category"]
		buf      = parseDefault(urlquery.Get("buf"), strconv.Atoi, 100)
		interval = parseDefault(urlquery.Get("stats"), time.ParseDuration, 10*time.Second)
	)

	if len(cats) == 0 {
		http.Error(w, "at least one category parameter is required", http.StatusBadRequest)
		return
	}
	if buf < 1 {
		buf = 1
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	var (
		eventc = make(chan *tev.Event, buf)
		sends  atomic.Uint64
		drops  atomic.Uint64
	)

	listener := tev.NewListener(func(categories []string, args ...any) {
		for _, arg := range args {
			ev, ok := arg.(*tev.Event)
			if !ok {
				continue
			}
			select {
			case eventc <- ev:
				sends.Add(1)
			default:
				drops.Add(1)
			}
		}
	})

	if err := s.tracing.On(cats, listener); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer s.tracing.RemoveListener(cats, listener)

	eventsource.Handler(func(lastID string, encoder *eventsource.Encoder, stop <-chan bool) {
		stats := time.NewTicker(interval)
		defer stats.Stop()

		var seq uint64
		for {
			select {
			case ev := <-eventc:
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				seq++
				if err := encoder.Encode(eventsource.Event{
					Type: "event",
					ID:   strconv.FormatUint(seq, 10),
					Data: data,
				}); err != nil {
					return
				}

			case <-stats.C:
				data, err := json.Marshal(StreamStats{
					Sends: sends.Load(),
					Drops: drops.Load(),
				})
				if err != nil {
					continue
				}
				if err := encoder.Encode(eventsource.Event{
					Type: "stats",
					Data: data,
				}); err != nil {
					return
				}

			case <-ctx.Done():
				return

			case <-stop:
				return
			}
		}
	}).ServeHTTP(w, r)
}
