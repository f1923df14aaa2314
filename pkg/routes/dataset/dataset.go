package dataset

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/datasets"
	"github.com/Ramsey-B/clover/pkg/generator"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Generations looks up recorded runs for a dataset year.
type Generations interface {
	Latest(ctx context.Context, dataset string, year int) (*models.Generation, error)
}

type Handler struct {
	generator   *generator.Generator
	generations Generations
}

// NewHandler builds dataset handlers. generations may be nil when no catalog
// is configured.
func NewHandler(gen *generator.Generator, generations Generations) *Handler {
	return &Handler{
		generator:   gen,
		generations: generations,
	}
}

// Register registers dataset routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:name", h.Get)
	g.GET("/:name/years", h.Years)
	g.GET("/:name/years/:year", h.Latest)
	g.POST("/:name/years/:year", h.Generate)
	g.DELETE("/:name/years/:year", h.Remove)
}

// List returns every registered dataset with the years it has output for
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	_, span := tracing.StartSpan(ctx, "dataset_handler.List")
	defer span.End()

	items := []models.DatasetSummary{}
	for _, ds := range h.generator.Registry().List() {
		summary, err := h.summary(ds)
		if err != nil {
			return err
		}
		items = append(items, summary)
	}

	return c.JSON(http.StatusOK, models.DatasetListResponse{
		Items:      items,
		TotalCount: len(items),
	})
}

// Get returns a single dataset
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	_, span := tracing.StartSpan(ctx, "dataset_handler.Get")
	defer span.End()

	ds, err := h.generator.Registry().Get(c.Param("name"))
	if err != nil {
		return err
	}
	summary, err := h.summary(ds)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

// Years lists the years with output for a dataset
func (h *Handler) Years(c echo.Context) error {
	ctx := c.Request().Context()
	_, span := tracing.StartSpan(ctx, "dataset_handler.Years")
	defer span.End()

	name := c.Param("name")
	years, err := h.generator.Years(name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.YearsResponse{Dataset: name, Years: years})
}

// Latest returns the most recent generation run for a dataset year
func (h *Handler) Latest(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "dataset_handler.Latest")
	defer span.End()

	if h.generations == nil {
		return httperror.NewHTTPError(http.StatusNotImplemented, "generation catalog is not configured")
	}

	name := c.Param("name")
	year, err := parseYear(c.Param("year"))
	if err != nil {
		return err
	}
	if _, err := h.generator.Registry().Get(name); err != nil {
		return err
	}

	generation, err := h.generations.Latest(ctx, name, year)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, generation)
}

// Generate builds the canonical file for a dataset year and returns the run report
func (h *Handler) Generate(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "dataset_handler.Generate")
	defer span.End()

	year, err := parseYear(c.Param("year"))
	if err != nil {
		return err
	}

	report, err := h.generator.Generate(ctx, c.Param("name"), year)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, report)
}

// Remove deletes the output for a dataset year
func (h *Handler) Remove(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "dataset_handler.Remove")
	defer span.End()

	year, err := parseYear(c.Param("year"))
	if err != nil {
		return err
	}

	if err := h.generator.Remove(ctx, c.Param("name"), year); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) summary(ds datasets.Dataset) (models.DatasetSummary, error) {
	years, err := h.generator.Years(ds.Name)
	if err != nil {
		return models.DatasetSummary{}, err
	}
	return models.DatasetSummary{
		Name:      ds.Name,
		Label:     ds.Label,
		Survey:    ds.Survey,
		Variables: ds.Variables.IDs(),
		Years:     years,
	}, nil
}

func parseYear(value string) (int, error) {
	year, err := strconv.Atoi(value)
	if err != nil || year < 1 {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid year %q", value)
	}
	return year, nil
}
