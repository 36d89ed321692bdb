package core

import (
	"supervisor/pkg/order"
	"supervisor/pkg/types"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type supervisorStatus struct {
	Symbol       string           `json:"symbol"`
	State        types.CycleState `json:"state"`
	PositionSize int64            `json:"positionSize"`
	Orders       []order.Wire     `json:"orders"`
}

func SetupFiberApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "supervisor",
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "data": nil})
	})

	app.Get("/status", func(c *fiber.Ctx) error {
		data := make(map[string]supervisorStatus, len(Supervisors))
		for svId, sv := range Supervisors {
			orders := sv.Orders()
			wires := make([]order.Wire, 0, len(orders))
			for _, o := range orders {
				wires = append(wires, o.ToWire())
			}
			data[svId] = supervisorStatus{
				Symbol:       sv.Symbol(),
				State:        sv.State(),
				PositionSize: sv.PositionSize(),
				Orders:       wires,
			}
		}
		return c.JSON(fiber.Map{"success": true, "data": data})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return app
}

func ShutdownFiberApp(app *fiber.App) {
	_ = app.Shutdown()
}
