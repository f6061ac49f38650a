// Package handler exposes the storefront over an authenticated JSON HTTP
// API. Every response uses the {success, message, data} envelope; list
// responses carry a pagination block.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"

	"github.com/threadline/storefront/internal/domain/cart"
	"github.com/threadline/storefront/internal/domain/coupon"
	"github.com/threadline/storefront/internal/domain/inventory"
	"github.com/threadline/storefront/internal/domain/order"
	"github.com/threadline/storefront/internal/domain/product"
)

// Handler wires the HTTP surface to the domain services.
type Handler struct {
	carts  *cart.Service
	orders *order.Service
}

// NewHandler constructs a Handler with the required domain services.
func NewHandler(carts *cart.Service, orders *order.Service) *Handler {
	return &Handler{carts: carts, orders: orders}
}

// NewRouter builds the gin engine with all storefront routes. The engine is
// mounted behind the shared net/http middleware chain, so it carries no
// logging or recovery middleware of its own.
func NewRouter(h *Handler, auth *Auth) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	api := r.Group("/api", auth.Require())

	cartGroup := api.Group("/cart")
	{
		cartGroup.GET("", h.GetCart)
		cartGroup.POST("/items", h.AddCartItem)
		cartGroup.PUT("/items/:itemId", h.UpdateCartItem)
		cartGroup.DELETE("/items/:itemId", h.RemoveCartItem)
		cartGroup.DELETE("", h.ClearCart)
		cartGroup.POST("/apply-coupon", h.ApplyCoupon)
		cartGroup.DELETE("/coupon", h.RemoveCoupon)
	}

	orderGroup := api.Group("/orders")
	{
		orderGroup.POST("", h.Checkout)
		orderGroup.GET("", h.ListOrders)
		orderGroup.GET("/:id", h.GetOrder)
		orderGroup.PUT("/:id/cancel", h.CancelOrder)
		orderGroup.GET("/:id/track", h.TrackOrder)
		orderGroup.POST("/:id/reorder", h.Reorder)
	}

	adminGroup := api.Group("/admin/orders", auth.RequireAdmin())
	{
		adminGroup.GET("", h.AdminListOrders)
		adminGroup.GET("/:id", h.AdminGetOrder)
		adminGroup.PUT("/:id/status", h.AdminUpdateStatus)
		adminGroup.PUT("/:id/payment", h.AdminUpdatePayment)
	}

	return r
}

// envelope is the uniform response shape.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// pagination is the listing metadata block.
type pagination struct {
	Page        int  `json:"page"`
	TotalPages  int  `json:"totalPages"`
	TotalItems  int  `json:"totalItems"`
	Limit       int  `json:"limit"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

func newPagination(page, limit, total int) pagination {
	totalPages := (total + limit - 1) / limit
	return pagination{
		Page:        page,
		TotalPages:  totalPages,
		TotalItems:  total,
		Limit:       limit,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func respondErrorMsg(c *gin.Context, status int, message string) {
	c.JSON(status, envelope{Success: false, Message: message})
}

// respondError maps domain errors onto HTTP statuses. Everything in the
// storefront taxonomy is a recoverable 4xx; unknown errors become 500 with
// a generic message.
func respondError(c *gin.Context, err error) {
	var (
		stockErr      *inventory.InsufficientStockError
		oosErr        *order.OutOfStockError
		transitionErr *order.InvalidTransitionError
	)

	switch {
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, product.ErrVariantNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, order.ErrNotFound):
		respondErrorMsg(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, cart.ErrInvalidQuantity):
		respondErrorMsg(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, coupon.ErrCouponExpired):
		respondErrorMsg(c, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &stockErr), errors.As(err, &oosErr):
		respondErrorMsg(c, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrNotCancellable),
		errors.Is(err, order.ErrStatusConflict),
		errors.As(err, &transitionErr):
		respondErrorMsg(c, http.StatusConflict, err.Error())
	default:
		respondErrorMsg(c, http.StatusInternalServerError, "internal error")
	}
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// pageFromQuery reads ?page= and ?limit= with sane bounds.
func pageFromQuery(c *gin.Context) order.Page {
	p := order.Page{Number: 1, Limit: defaultPageLimit}
	if v, ok := intQuery(c, "page"); ok && v >= 1 {
		p.Number = v
	}
	if v, ok := intQuery(c, "limit"); ok && v >= 1 {
		p.Limit = min(v, maxPageLimit)
	}
	return p
}

func intQuery(c *gin.Context, key string) (int, bool) {
	s := c.Query(key)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
