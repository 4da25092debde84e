package rentals

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"rental-backend/internal/platform/apierr"
)

type Handler struct{ svc *Service }

// RegisterRoutes: write は更新系だけに掛けるミドルウェア（認証）
func RegisterRoutes(r gin.IRoutes, write gin.HandlerFunc, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/rentals", write, h.Create)
	r.GET("/rentals", h.List)
	r.GET("/rentals/:key", h.Get)
	r.PUT("/rentals/:key", write, h.Update)
	r.DELETE("/rentals/:key", write, h.Delete)
	r.PATCH("/rentals/:key/status", write, h.ChangeStatus)

	r.POST("/rentals/:key/payments", write, h.AddPayment)
	r.GET("/rentals/:key/payments", h.ListPayments)
}

// Create godoc
// @Summary  Create a rental order (availability is checked in the same transaction)
// @Tags     rentals
// @Accept   json
// @Produce  json
// @Param    body body OrderRequest true "order"
// @Success  201 {object} OrderResponse
// @Failure  400 {object} map[string]any
// @Failure  409 {object} map[string]any "INSUFFICIENT_STOCK"
// @Router   /rentals [post]
func (h *Handler) Create(c *gin.Context) {
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "invalid json: "+err.Error())
		return
	}
	res, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.Header("Location", "/api/v1/rentals/"+res.OrderULID)
	c.JSON(http.StatusCreated, res)
}

// List godoc
// @Summary  List rental orders
// @Tags     rentals
// @Produce  json
// @Param    status query string false "status"
// @Param    client_id query int false "client"
// @Param    from query string false "YYYY-MM-DD"
// @Param    to query string false "YYYY-MM-DD"
// @Param    limit query int false "default 50, max 200"
// @Param    offset query int false "offset"
// @Param    order query string false "asc|desc"
// @Router   /rentals [get]
func (h *Handler) List(c *gin.Context) {
	q := ListQuery{
		Status: c.Query("status"),
		From:   c.Query("from"),
		To:     c.Query("to"),
		Page: Page{
			Limit:  atoiDef(c.Query("limit"), 50),
			Offset: atoiDef(c.Query("offset"), 0),
			Order:  strings.ToLower(c.DefaultQuery("order", "desc")),
		},
	}
	if v := c.Query("client_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			apierr.BadRequest(c, "client_id must be a number")
			return
		}
		q.ClientID = &n
	}
	items, total, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	p := normalizePage(q.Page)
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "next_offset": nextOffset(total, p)})
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Update(c *gin.Context) {
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "invalid json: "+err.Error())
		return
	}
	res, err := h.svc.Update(c.Request.Context(), c.Param("key"), req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("key")); err != nil {
		apierr.Write(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ChangeStatus godoc
// @Summary  Change order status (terminal -> active re-checks availability)
// @Tags     rentals
// @Accept   json
// @Produce  json
// @Param    key path string true "order id or ULID"
// @Param    body body StatusRequest true "status"
// @Success  200 {object} OrderResponse
// @Router   /rentals/{key}/status [patch]
func (h *Handler) ChangeStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "status is required")
		return
	}
	res, err := h.svc.ChangeStatus(c.Request.Context(), c.Param("key"), req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ===== payments =====

func (h *Handler) AddPayment(c *gin.Context) {
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "invalid json: "+err.Error())
		return
	}
	res, err := h.svc.AddPayment(c.Request.Context(), c.Param("key"), req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListPayments(c *gin.Context) {
	items, err := h.svc.ListPayments(c.Request.Context(), c.Param("key"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// ===== helpers =====

func atoiDef(s string, d int) int {
	if s == "" {
		return d
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return n
}

func nextOffset(total int64, p Page) int {
	n := p.Offset + p.Limit
	if n >= int(total) {
		return 0
	}
	return n
}
