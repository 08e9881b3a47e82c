package http

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/domain"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/pipeline"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/repository"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/service"
)

const (
	defaultReadingLimit = 1000
	maxReadingLimit     = 50000
)

type MeterStore interface {
	ListMeters(ctx context.Context) ([]domain.MeterDetail, error)
	GetMeter(ctx context.Context, id int64) (domain.MeterDetail, error)
	MeterReadings(ctx context.Context, meterID int64, limit int) ([]domain.Reading, error)
}

type LoadRunner interface {
	LoadAll(ctx context.Context) (*pipeline.Summary, error)
}

type failureJSON struct {
	Item  string `json:"item"`
	Error string `json:"error"`
}

type summaryJSON struct {
	RunID    string        `json:"run_id"`
	Kind     string        `json:"kind"`
	Total    int           `json:"total"`
	Failed   int           `json:"failed"`
	Message  string        `json:"message"`
	Failures []failureJSON `json:"failures"`
}

func toJSON(s *pipeline.Summary) summaryJSON {
	out := summaryJSON{
		RunID:    s.RunID,
		Kind:     s.Kind,
		Total:    s.Total,
		Failed:   s.Failed,
		Message:  s.String(),
		Failures: []failureJSON{},
	}
	for _, f := range s.Failures {
		out.Failures = append(out.Failures, failureJSON{Item: f.Item, Error: f.Err.Error()})
	}
	return out
}

func Register(app *fiber.App, svcs *service.Services) {
	register(app, svcs.Repos, svcs)
}

func register(app *fiber.App, store MeterStore, runner LoadRunner) {
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })

	g := app.Group("/")
	g.Get("meters", func(c *fiber.Ctx) error {
		items, err := store.ListMeters(c.UserContext())
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(items)
	})
	g.Get("meters/:id", func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid meter id"})
		}
		m, err := store.GetMeter(c.UserContext(), id)
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": err.Error()})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(m)
	})
	g.Get("meters/:id/readings", func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid meter id"})
		}
		limit := c.QueryInt("limit", defaultReadingLimit)
		if limit < 1 || limit > maxReadingLimit {
			return c.Status(400).JSON(fiber.Map{"error": "limit must be between 1 and " + strconv.Itoa(maxReadingLimit)})
		}
		items, err := store.MeterReadings(c.UserContext(), id, limit)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(items)
	})

	// one load run at a time per process
	var running sync.Mutex
	g.Post("loads", func(c *fiber.Ctx) error {
		if !running.TryLock() {
			return c.Status(409).JSON(fiber.Map{"error": "a load run is already in progress"})
		}
		defer running.Unlock()

		s, err := runner.LoadAll(c.UserContext())
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(toJSON(s))
	})
}
