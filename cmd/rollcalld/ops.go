package main

import (
	"github.com/abihf/rollcall"
	"github.com/abihf/rollcall/metrics"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// newOps serves /health and /metrics for the operator.
func newOps(st *rollcall.Station, m *metrics.Metrics) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Get("/health", func(c *fiber.Ctx) error {
		v, err := st.Model.Acquire()
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "no model",
			})
		}
		return c.JSON(fiber.Map{
			"status":        "ok",
			"model_version": v.Number,
			"labels":        len(v.Model.Labels()),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	return app
}
