package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/banking/address-service/internal/domain"
	"github.com/banking/address-service/internal/pkg/logger"
)

// CountryLister returns the grouped country list
type CountryLister interface {
	Countries(ctx context.Context) ([]domain.CountryEntry, error)
}

// CountryHandler serves the country list
type CountryHandler struct {
	countries CountryLister
	log       *logger.Logger
}

// NewCountryHandler creates a new country handler
func NewCountryHandler(countries CountryLister, log *logger.Logger) *CountryHandler {
	return &CountryHandler{
		countries: countries,
		log:       log.Named("country_handler"),
	}
}

// ListCountries handles GET /api/v1/countries
func (h *CountryHandler) ListCountries(c echo.Context) error {
	entries, err := h.countries.Countries(c.Request().Context())
	if err != nil {
		return handleServiceError(err)
	}
	return c.JSON(http.StatusOK, entries)
}
