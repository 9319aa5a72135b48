package server

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/pairmatch/ledger/internal/app"
	ledgerr "github.com/pairmatch/ledger/internal/errors"
)

// NewApp builds the fiber app with shared middleware and registers all
// provided services.
func NewApp(appCtx *app.AppContext, registrars ...Registrar) *fiber.App {
	fApp := fiber.New(fiber.Config{
		AppName:      "pairmatch-ledger",
		ErrorHandler: ledgerr.Handler,
	})

	fApp.Use(recover.New())
	fApp.Use(RequestLogger())

	fApp.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	for _, r := range registrars {
		r.Register(fApp)
	}

	return fApp
}

// Start boots the HTTP server on the configured address.
func Start(appCtx *app.AppContext, registrars ...Registrar) error {
	fApp := NewApp(appCtx, registrars...)
	addr := fmt.Sprintf("%s:%s", appCtx.Config.HTTP.Host, appCtx.Config.HTTP.Port)
	return fApp.Listen(addr)
}
