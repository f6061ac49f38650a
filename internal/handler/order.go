package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/threadline/storefront/internal/domain/order"
)

type checkoutRequest struct {
	ShippingAddress addressInput  `json:"shippingAddress" binding:"required"`
	BillingAddress  *addressInput `json:"billingAddress"`
	PaymentMethod   string        `json:"paymentMethod" binding:"required"`
	Notes           string        `json:"notes"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Checkout handles POST /api/orders. The cart becomes an immutable order;
// stock is reserved before the order exists.
func (h *Handler) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorMsg(c, http.StatusBadRequest, "invalid request body")
		return
	}

	domainReq := order.CheckoutRequest{
		UserID:          userID(c),
		ShippingAddress: req.ShippingAddress.toDomain(),
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	}
	if req.BillingAddress != nil {
		billing := req.BillingAddress.toDomain()
		domainReq.BillingAddress = &billing
	}

	o, err := h.orders.Checkout(c.Request.Context(), domainReq)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Order placed", toOrderView(o))
}

// ListOrders handles GET /api/orders.
func (h *Handler) ListOrders(c *gin.Context) {
	page := pageFromQuery(c)
	orders, total, err := h.orders.ListForUser(c.Request.Context(), userID(c), page)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Orders retrieved", gin.H{
		"items":      toOrderViews(orders),
		"pagination": newPagination(page.Number, page.Limit, total),
	})
}

// GetOrder handles GET /api/orders/:id. The id may be the storage id or the
// order number.
func (h *Handler) GetOrder(c *gin.Context) {
	o, err := h.orders.GetForUser(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Order retrieved", toOrderView(o))
}

// CancelOrder handles PUT /api/orders/:id/cancel.
func (h *Handler) CancelOrder(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorMsg(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = "Cancelled by customer"
	}

	o, err := h.orders.Cancel(c.Request.Context(), userID(c), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Order cancelled", toOrderView(o))
}

// TrackOrder handles GET /api/orders/:id/track.
func (h *Handler) TrackOrder(c *gin.Context) {
	o, err := h.orders.GetForUser(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	history := make([]statusEntryView, len(o.History))
	for i, e := range o.History {
		history[i] = statusEntryView{
			Status:    string(e.Status),
			Timestamp: e.Timestamp,
			Note:      e.Note,
		}
	}
	respond(c, http.StatusOK, "Tracking retrieved", gin.H{
		"orderNumber":   o.Number,
		"status":        string(o.Status),
		"statusHistory": history,
		"shipping": shippingView{
			Carrier:           o.Shipping.Carrier,
			TrackingNumber:    o.Shipping.TrackingNumber,
			EstimatedDelivery: o.Shipping.EstimatedDelivery,
			ShippedAt:         o.Shipping.ShippedAt,
			DeliveredAt:       o.Shipping.DeliveredAt,
		},
	})
}

// Reorder handles POST /api/orders/:id/reorder. Each order line is re-added
// to the cart at current catalog prices; lines whose product, variant, or
// stock is gone are reported back instead of failing the whole request.
func (h *Handler) Reorder(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	o, err := h.orders.GetForUser(ctx, uid, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var (
		crt     any
		skipped []gin.H
	)
	for _, it := range o.Items {
		updated, err := h.carts.AddItem(ctx, uid, it.ProductID, it.Size, it.Color, it.Quantity)
		if err != nil {
			skipped = append(skipped, gin.H{
				"productId": it.ProductID,
				"name":      it.Name,
				"reason":    err.Error(),
			})
			continue
		}
		crt = toCartView(updated)
	}

	if crt == nil {
		current, err := h.carts.Get(ctx, uid)
		if err != nil {
			respondError(c, err)
			return
		}
		crt = toCartView(current)
	}

	respond(c, http.StatusOK, "Items added to cart", gin.H{
		"cart":         crt,
		"skippedItems": skipped,
	})
}
