// Package pipeline drives extraction and load runs over independent work
// items and reports how many failed.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Options configures one Run.
type Options[T any] struct {
	Kind    string
	RunID   string
	Workers int
	Name    func(T) string
	Log     zerolog.Logger
}

type Failure struct {
	Item string
	Err  error
}

type Summary struct {
	RunID    string
	Kind     string
	Total    int
	Failed   int
	Failures []Failure
}

func (s *Summary) String() string {
	if s.Failed == 0 {
		return fmt.Sprintf("all %d items succeeded", s.Total)
	}
	return fmt.Sprintf("%d of %d items failed", s.Failed, s.Total)
}

// Err is nil when every item succeeded.
func (s *Summary) Err() error {
	if s.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%s run %s: %s", s.Kind, s.RunID, s)
}

// Run calls fn for every item, at most opts.Workers at a time. A failing
// item never stops the run. Once ctx is done no further items start, and
// those items count as failed.
func Run[T any](ctx context.Context, items []T, opts Options[T], fn func(context.Context, T) error) *Summary {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Name == nil {
		opts.Name = func(item T) string { return fmt.Sprint(item) }
	}
	log := opts.Log.With().Str("run_id", opts.RunID).Str("kind", opts.Kind).Logger()
	log.Info().Int("items", len(items)).Int("workers", opts.Workers).Msg("run started")

	errs := make([]error, len(items))
	var g errgroup.Group
	g.SetLimit(opts.Workers)

	next := 0
	for ; next < len(items); next++ {
		if ctx.Err() != nil {
			break
		}
		i, item := next, items[next]
		g.Go(func() error {
			errs[i] = fn(ctx, item)
			return nil
		})
	}
	g.Wait()
	for i := next; i < len(items); i++ {
		errs[i] = ctx.Err()
	}

	s := &Summary{RunID: opts.RunID, Kind: opts.Kind, Total: len(items)}
	for i, err := range errs {
		if err == nil {
			continue
		}
		name := opts.Name(items[i])
		log.Error().Err(err).Str("item", name).Msg("item failed")
		s.Failed++
		s.Failures = append(s.Failures, Failure{Item: name, Err: err})
	}

	ev := log.Info()
	if s.Failed > 0 {
		ev = log.Warn()
	}
	ev.Int("failed", s.Failed).Int("total", s.Total).Msg(s.String())
	return s
}
