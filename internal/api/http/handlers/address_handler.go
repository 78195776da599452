package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/banking/address-service/internal/domain"
	"github.com/banking/address-service/internal/engine"
	"github.com/banking/address-service/internal/pkg/logger"
	"github.com/banking/address-service/internal/service"
)

// AddressFormService is the form session capability used by the handler
type AddressFormService interface {
	GetAddress(ctx context.Context, mode domain.Mode, addressID string) (*domain.FormResult, error)
	ApplyStreetSelection(ctx context.Context, req *domain.StreetSelectionRequest) (*domain.FormResult, error)
	ApplyPostalCodeSelection(ctx context.Context, req *domain.PostalCodeSelectionRequest) (*domain.FormResult, error)
	Validate(ctx context.Context, req *domain.FormRequest) (*domain.FormResult, error)
}

// AddressHandler handles address form HTTP requests
type AddressHandler struct {
	forms AddressFormService
	log   *logger.Logger
}

// NewAddressHandler creates a new address handler
func NewAddressHandler(forms AddressFormService, log *logger.Logger) *AddressHandler {
	return &AddressHandler{
		forms: forms,
		log:   log.Named("address_handler"),
	}
}

// GetAddress handles GET /api/v1/addresses/:id?mode=
func (h *AddressHandler) GetAddress(c echo.Context) error {
	ctx := c.Request().Context()

	addressID := c.Param("id")
	if addressID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid address ID")
	}

	mode := domain.ModeFull
	if name := c.QueryParam("mode"); name != "" {
		if err := mode.UnmarshalText([]byte(name)); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid mode")
		}
	}

	result, err := h.forms.GetAddress(ctx, mode, addressID)
	if err != nil {
		if !errors.Is(err, service.ErrAddressNotFound) {
			h.log.WithContext(ctx).Error("failed to load address",
				logger.AddressID(addressID), logger.ErrorField(err))
		}
		return handleServiceError(err)
	}

	return c.JSON(http.StatusOK, result)
}

// StreetSelection handles POST /api/v1/addresses/street-selection
func (h *AddressHandler) StreetSelection(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.StreetSelectionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.forms.ApplyStreetSelection(ctx, &req)
	if err != nil {
		h.log.WithContext(ctx).Error("failed to apply street selection", logger.ErrorField(err))
		return handleServiceError(err)
	}

	return c.JSON(http.StatusOK, result)
}

// PostalCodeSelection handles POST /api/v1/addresses/postal-code-selection
func (h *AddressHandler) PostalCodeSelection(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.PostalCodeSelectionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.forms.ApplyPostalCodeSelection(ctx, &req)
	if err != nil {
		h.log.WithContext(ctx).Error("failed to apply postal code selection", logger.ErrorField(err))
		return handleServiceError(err)
	}

	return c.JSON(http.StatusOK, result)
}

// Validate handles POST /api/v1/addresses/validate. An invalid form is a
// successful response carrying the field errors.
func (h *AddressHandler) Validate(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.FormRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.forms.Validate(ctx, &req)
	if err != nil {
		h.log.WithContext(ctx).Error("failed to validate address", logger.ErrorField(err))
		return handleServiceError(err)
	}

	return c.JSON(http.StatusOK, result)
}

func handleServiceError(err error) error {
	switch {
	case errors.Is(err, service.ErrAddressNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "address not found")
	case errors.Is(err, service.ErrUpstream):
		return echo.NewHTTPError(http.StatusBadGateway, "reference service unavailable")
	case errors.Is(err, engine.ErrMissingField):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid input")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
