package ledger

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pairmatch/ledger/internal/app"
	ledgerr "github.com/pairmatch/ledger/internal/errors"
	"github.com/pairmatch/ledger/internal/identity"
	"github.com/pairmatch/ledger/internal/server"
)

// Registrar ties the ledger service into the HTTP server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the ledger service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the ledger routes to the app. All routes require an
// authenticated caller; ownership checks happen in the service.
func (r *Registrar) Register(fApp *fiber.App) {
	svc := NewLedgerService(r.appCtx)
	h := &handlers{svc: svc}

	v1 := fApp.Group("/v1", server.AuthRequired(r.appCtx))

	v1.Post("/profiles", h.createProfile)
	v1.Patch("/profiles/:owner", h.updateProfile)
	v1.Get("/profiles/:owner", h.getProfile)
	v1.Get("/profiles/:owner/matches", h.listMatches)

	v1.Post("/likes", h.sendLike)
	v1.Get("/likes/received", h.listLikedYou)
	v1.Get("/likes/received/count", h.countLikedYou)

	v1.Post("/blocks", h.blockUser)

	v1.Post("/messages", h.sendMessage)
	v1.Get("/threads/:peer", h.getThread)
}

type handlers struct {
	svc *Service
}

func caller(c *fiber.Ctx) (identity.Key, error) {
	key, ok := server.Caller(c)
	if !ok {
		return identity.Key{}, ledgerr.Unauthorizedf("missing caller identity")
	}
	return key, nil
}

func (h *handlers) createProfile(c *fiber.Ctx) error {
	key, err := caller(c)
	if err != nil {
		return err
	}
	var req CreateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return ledgerr.Validationf("invalid request body")
	}
	view, err := h.svc.CreateProfile(c.UserContext(), key, &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

func (h *handlers) updateProfile(c *fiber.Ctx) error {
	key, err := caller(c)
	if err != nil {
		return err
	}
	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return ledgerr.Validationf("invalid request body")
	}
	req.Owner = c.Params("owner")
	view, err := h.svc.UpdateProfile(c.UserContext(), key, &req)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (h *handlers) getProfile(c *fiber.Ctx) error {
	view, err := h.svc.GetProfile(c.UserContext(), c.Params("owner"))
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (h *handlers) listMatches(c *fiber.Ctx) error {
	matches, err := h.svc.ListMatches(c.UserContext(), c.Params("owner"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"matches": matches})
}

func (h *handlers) sendLike(c *fiber.Ctx) error {
	key, err := caller(c)
	if err != nil {
		return err
	}
	var req SendLikeRequest
	if err := c.BodyParser(&req); err != nil {
		return ledgerr.Validationf("invalid request body")
	}
	view, err := h.svc.SendLike(c.UserContext(), key, &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

func (h *handlers) listLikedYou(c *fiber.Ctx) error {
	key, err := caller(c)
	if err != nil {
		return err
	}
	page, err := h.svc.ListLikedYou(c.UserContext(), key.String(), tokenParam(c), c.QueryInt("limit"))
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (h *handlers) countLikedYou(c *fiber.Ctx) error {
	key, err := caller(c)
	if err != nil {
		return err
	}
	count, err := h.svc.CountLikedYou(c.UserContext(), key.String())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"count": count})
}

func (h *handlers) blockUser(c *fiber.Ctx) error {
	key, err := caller(c)
	if err != nil {
		return err
	}
	var req BlockUserRequest
	if err := c.BodyParser(&req); err != nil {
		return ledgerr.Validationf("invalid request body")
	}
	view, err := h.svc.BlockUser(c.UserContext(), key, &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

func (h *handlers) sendMessage(c *fiber.Ctx) error {
	key, err := caller(c)
	if err != nil {
		return err
	}
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return ledgerr.Validationf("invalid request body")
	}
	view, err := h.svc.SendMessage(c.UserContext(), key, &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

func (h *handlers) getThread(c *fiber.Ctx) error {
	key, err := caller(c)
	if err != nil {
		return err
	}
	page, err := h.svc.GetThread(c.UserContext(), key, c.Params("peer"), tokenParam(c), c.QueryInt("limit"))
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func tokenParam(c *fiber.Ctx) *string {
	if t := c.Query("token"); t != "" {
		return &t
	}
	return nil
}
