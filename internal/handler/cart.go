package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type addItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	Variant   struct {
		Size  string `json:"size" binding:"required"`
		Color string `json:"color" binding:"required"`
	} `json:"variant" binding:"required"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type applyCouponRequest struct {
	Code string `json:"couponCode" binding:"required"`
}

// GetCart handles GET /api/cart.
func (h *Handler) GetCart(c *gin.Context) {
	crt, err := h.carts.Get(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Cart retrieved", toCartView(crt))
}

// AddCartItem handles POST /api/cart/items.
func (h *Handler) AddCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorMsg(c, http.StatusBadRequest, "invalid request body")
		return
	}

	crt, err := h.carts.AddItem(c.Request.Context(), userID(c),
		req.ProductID, req.Variant.Size, req.Variant.Color, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Item added to cart", toCartView(crt))
}

// UpdateCartItem handles PUT /api/cart/items/:itemId. Quantity zero or less
// removes the line.
func (h *Handler) UpdateCartItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorMsg(c, http.StatusBadRequest, "invalid request body")
		return
	}

	crt, err := h.carts.UpdateItemQuantity(c.Request.Context(), userID(c),
		c.Param("itemId"), req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Cart item updated", toCartView(crt))
}

// RemoveCartItem handles DELETE /api/cart/items/:itemId.
func (h *Handler) RemoveCartItem(c *gin.Context) {
	crt, err := h.carts.RemoveItem(c.Request.Context(), userID(c), c.Param("itemId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Item removed from cart", toCartView(crt))
}

// ClearCart handles DELETE /api/cart.
func (h *Handler) ClearCart(c *gin.Context) {
	crt, err := h.carts.Clear(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Cart cleared", toCartView(crt))
}

// ApplyCoupon handles POST /api/cart/apply-coupon.
func (h *Handler) ApplyCoupon(c *gin.Context) {
	var req applyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorMsg(c, http.StatusBadRequest, "invalid request body")
		return
	}

	crt, err := h.carts.ApplyCoupon(c.Request.Context(), userID(c), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Coupon applied", toCartView(crt))
}

// RemoveCoupon handles DELETE /api/cart/coupon.
func (h *Handler) RemoveCoupon(c *gin.Context) {
	crt, err := h.carts.RemoveCoupon(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Coupon removed", toCartView(crt))
}
