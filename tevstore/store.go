// Package tevstore retains captured trace events in per-category ring
// buffers and answers simple queries over them.
package tevstore

import (
	"sort"
	"sync"

	"github.com/tevkit/tev"
	"github.com/tevkit/tev/internal/tevring"
)

// DefaultCategorySize is the default number of events retained per category.
const DefaultCategorySize = 1000

// StoreConfig collects the parameters for [NewStore]. All fields are
// optional.
type StoreConfig struct {
	// CategorySize is the maximum number of events retained per category.
	// Default [DefaultCategorySize].
	CategorySize int
}

// Store keeps the most recent events for each category. It implements
// [tev.EventWriter] and is the usual destination for an [tev.Agent].
type Store struct {
	size int

	mtx  sync.Mutex
	bufs map[string]*tevring.Ring[*tev.Event]
}

var _ tev.EventWriter = (*Store)(nil)

// NewStore returns an empty store with the given configuration.
func NewStore(cfg StoreConfig) *Store {
	if cfg.CategorySize <= 0 {
		cfg.CategorySize = DefaultCategorySize
	}
	return &Store{
		size: cfg.CategorySize,
		bufs: map[string]*tevring.Ring[*tev.Event]{},
	}
}

// WriteEvents implements tev.EventWriter. Each event is indexed under every
// one of its categories.
func (s *Store) WriteEvents(events []*tev.Event) error {
	for _, ev := range events {
		for _, c := range ev.Categories {
			s.getOrCreate(c).Add(ev)
		}
	}
	return nil
}

func (s *Store) getOrCreate(category string) *tevring.Ring[*tev.Event] {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	rb, ok := s.bufs[category]
	if !ok {
		rb = tevring.New[*tev.Event](s.size)
		s.bufs[category] = rb
	}
	return rb
}

// Categories returns the sorted categories with at least one retained event.
func (s *Store) Categories() []string {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	out := make([]string, 0, len(s.bufs))
	for c := range s.bufs {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// QueryRequest selects retained events. Zero fields select everything.
type QueryRequest struct {
	Categories []string        `json:"categories,omitempty"`
	Types      []tev.EventType `json:"types,omitempty"`
	Name       string          `json:"name,omitempty"`
	Limit      int             `json:"limit,omitempty"`
}

// DefaultQueryLimit caps the response when the request doesn't.
const DefaultQueryLimit = 100

// QueryResponse carries the selected events, newest first.
type QueryResponse struct {
	Total   int          `json:"total"`
	Matched int          `json:"matched"`
	Events  []*tev.Event `json:"events"`
}

// Query selects retained events matching the request. An event retained
// under several categories is returned once.
func (s *Store) Query(req *QueryRequest) *QueryResponse {
	if req == nil {
		req = &QueryRequest{}
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	s.mtx.Lock()
	bufs := make([]*tevring.Ring[*tev.Event], 0, len(s.bufs))
	if len(req.Categories) == 0 {
		for _, rb := range s.bufs {
			bufs = append(bufs, rb)
		}
	} else {
		for _, c := range req.Categories {
			if rb, ok := s.bufs[c]; ok {
				bufs = append(bufs, rb)
			}
		}
	}
	s.mtx.Unlock()

	var (
		res  = &QueryResponse{}
		seen = map[*tev.Event]struct{}{}
		all  []*tev.Event
	)
	for _, rb := range bufs {
		rb.Walk(func(ev *tev.Event) error {
			if _, ok := seen[ev]; ok {
				return nil
			}
			seen[ev] = struct{}{}
			res.Total++
			if !matches(req, ev) {
				return nil
			}
			res.Matched++
			all = append(all, ev)
			return nil
		})
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	res.Events = all
	return res
}

func matches(req *QueryRequest, ev *tev.Event) bool {
	if len(req.Types) > 0 {
		var ok bool
		for _, typ := range req.Types {
			if ev.Type == typ {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if req.Name != "" && ev.Name != req.Name {
		return false
	}
	return true
}
