package generation

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const defaultLimit = 50

// Catalog reads recorded generation runs.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*models.Generation, error)
	List(ctx context.Context, dataset string, limit int) ([]*models.Generation, error)
}

type Handler struct {
	catalog Catalog
}

func NewHandler(catalog Catalog) *Handler {
	return &Handler{catalog: catalog}
}

// Register registers generation routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
}

// List returns generation runs newest first, optionally for one dataset
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "generation_handler.List")
	defer span.End()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = defaultLimit
	}

	items, err := h.catalog.List(ctx, c.QueryParam("dataset"), limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.GenerationListResponse{
		Items:      items,
		TotalCount: len(items),
	})
}

// Get returns a single generation run
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "generation_handler.Get")
	defer span.End()

	generation, err := h.catalog.GetByID(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, generation)
}
