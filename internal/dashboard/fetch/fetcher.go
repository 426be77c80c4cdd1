// Package fetch issues the single read request of a refresh cycle and
// exposes the decoded response through dotted-path lookups.
package fetch

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

// Getter performs a GET against the backend and returns the 2xx body.
type Getter interface {
	Get(ctx context.Context, path string, query url.Values) ([]byte, error)
}

// Request describes one read.
type Request struct {
	Endpoint string
	Query    url.Values
	// Required paths must be present or the whole payload is rejected.
	Required  []string
	Indicator Indicator
}

// Fetcher runs read requests.
type Fetcher struct {
	getter Getter
	logger *logger.Logger
}

// New creates a fetcher.
func New(g Getter, log *logger.Logger) *Fetcher {
	return &Fetcher{getter: g, logger: log.WithComponent("fetch")}
}

// Fetch issues the request and decodes the body. The indicator is cleared on
// every exit path, including a panic while decoding.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (p Payload, err error) {
	if req.Indicator != nil {
		req.Indicator.Show()
		defer req.Indicator.Hide()
	}
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error().Interface("panic", r).Str("endpoint", req.Endpoint).Msg("panic while decoding payload")
			p, err = nil, errors.Payload(req.Endpoint, fmt.Errorf("decode panic: %v", r))
		}
	}()

	raw, err := f.getter.Get(ctx, req.Endpoint, req.Query)
	if err != nil {
		return nil, err
	}

	p, err = Decode(raw)
	if err != nil {
		f.logger.Warn().Err(err).Str("endpoint", req.Endpoint).Msg("malformed payload")
		return nil, errors.Payload(req.Endpoint, err)
	}

	for _, path := range req.Required {
		if !p.Has(path) {
			f.logger.Warn().Str("endpoint", req.Endpoint).Str("path", path).Msg("payload missing required path")
			return nil, errors.Payload(path, nil)
		}
	}
	return p, nil
}

// Sequence hands out refresh cycle ids. Only the latest id may render.
type Sequence struct {
	current atomic.Uint64
}

// Next starts a new cycle and returns its id.
func (s *Sequence) Next() uint64 {
	return s.current.Add(1)
}

// IsLatest reports whether id is still the newest cycle.
func (s *Sequence) IsLatest(id uint64) bool {
	return s.current.Load() == id
}

// Current returns the newest cycle id, 0 before the first.
func (s *Sequence) Current() uint64 {
	return s.current.Load()
}
