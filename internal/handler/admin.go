package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/threadline/storefront/internal/domain/order"
)

type updateStatusRequest struct {
	Status         string `json:"status" binding:"required"`
	Note           string `json:"note"`
	TrackingNumber string `json:"trackingNumber"`
	Carrier        string `json:"carrier"`
}

type updatePaymentRequest struct {
	Status        string `json:"status" binding:"required"`
	TransactionID string `json:"transactionId"`
}

// AdminListOrders handles GET /api/admin/orders. Supports ?status= and
// ?userId= filters on top of the usual pagination.
func (h *Handler) AdminListOrders(c *gin.Context) {
	filter := order.ListFilter{
		Status: order.Status(c.Query("status")),
		UserID: c.Query("userId"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		respondErrorMsg(c, http.StatusBadRequest, "unknown status filter")
		return
	}

	page := pageFromQuery(c)
	orders, total, err := h.orders.List(c.Request.Context(), filter, page)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Orders retrieved", gin.H{
		"items":      toOrderViews(orders),
		"pagination": newPagination(page.Number, page.Limit, total),
	})
}

// AdminGetOrder handles GET /api/admin/orders/:id without an ownership check.
func (h *Handler) AdminGetOrder(c *gin.Context) {
	o, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Order retrieved", toOrderView(o))
}

// AdminUpdateStatus handles PUT /api/admin/orders/:id/status.
func (h *Handler) AdminUpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorMsg(c, http.StatusBadRequest, "invalid request body")
		return
	}

	status := order.Status(req.Status)
	if !status.Valid() {
		respondErrorMsg(c, http.StatusBadRequest, "unknown status")
		return
	}

	o, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), order.StatusUpdate{
		Status:         status,
		Note:           req.Note,
		TrackingNumber: req.TrackingNumber,
		Carrier:        req.Carrier,
		Actor:          userID(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Order status updated", toOrderView(o))
}

// AdminUpdatePayment handles PUT /api/admin/orders/:id/payment.
func (h *Handler) AdminUpdatePayment(c *gin.Context) {
	var req updatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorMsg(c, http.StatusBadRequest, "invalid request body")
		return
	}

	status := order.PaymentStatus(req.Status)
	switch status {
	case order.PaymentPending, order.PaymentProcessing, order.PaymentPaid,
		order.PaymentFailed, order.PaymentRefunded:
	default:
		respondErrorMsg(c, http.StatusBadRequest, "unknown payment status")
		return
	}

	o, err := h.orders.UpdatePayment(c.Request.Context(), c.Param("id"), status, req.TransactionID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Payment status updated", toOrderView(o))
}
