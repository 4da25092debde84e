package inventory

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"rental-backend/internal/platform/apierr"
	"rental-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// RegisterRoutes: write は更新系だけに掛けるミドルウェア（認証）
func RegisterRoutes(r gin.IRoutes, write gin.HandlerFunc, svc *Service) {
	h := &Handler{svc: svc}

	// unit types
	r.GET("/unit-types", h.ListUnitTypes)
	r.POST("/unit-types", write, h.CreateUnitType)
	r.PUT("/unit-types/:id", write, h.RenameUnitType)
	r.DELETE("/unit-types/:id", write, h.DeleteUnitType)

	// inventory
	r.GET("/inventory/summary", h.Summary)
	r.GET("/inventory/availability", h.Availability)
	r.POST("/inventory/transitions", write, h.ApplyTransition)
	r.GET("/inventory/units", h.ListUnits)
	r.GET("/inventory/movements", h.ListMovements)
}

// ===== unit types =====

// ListUnitTypes godoc
// @Summary  List unit types
// @Tags     unit-types
// @Produce  json
// @Success  200 {array} UnitTypeResponse
// @Router   /unit-types [get]
func (h *Handler) ListUnitTypes(c *gin.Context) {
	items, err := h.svc.ListUnitTypes(c.Request.Context())
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// CreateUnitType godoc
// @Summary  Create a unit type (name is unique, case-insensitive)
// @Tags     unit-types
// @Accept   json
// @Produce  json
// @Param    body body CreateUnitTypeRequest true "unit type"
// @Success  201 {object} UnitTypeResponse
// @Failure  409 {object} map[string]any
// @Router   /unit-types [post]
func (h *Handler) CreateUnitType(c *gin.Context) {
	var req CreateUnitTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "invalid json")
		return
	}
	res, err := h.svc.CreateUnitType(c.Request.Context(), req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.Header("Location", "/api/v1/unit-types/"+strconv.FormatInt(res.UnitTypeID, 10))
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) RenameUnitType(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateUnitTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, "invalid json")
		return
	}
	res, err := h.svc.RenameUnitType(c.Request.Context(), id, req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) DeleteUnitType(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteUnitType(c.Request.Context(), id); err != nil {
		apierr.Write(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ===== inventory =====

// Summary godoc
// @Summary  Per-type counts by state (available / rented / in_service) with price
// @Tags     inventory
// @Produce  json
// @Success  200 {array} SummaryItem
// @Router   /inventory/summary [get]
func (h *Handler) Summary(c *gin.Context) {
	items, err := h.svc.Summary(c.Request.Context())
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Availability godoc
// @Summary  Free units per type for a date range
// @Tags     inventory
// @Produce  json
// @Param    from query string true "YYYY-MM-DD"
// @Param    to query string true "YYYY-MM-DD"
// @Param    exclude_order_id query int false "order to leave out (editing)"
// @Success  200 {object} AvailabilityResponse
// @Failure  400 {object} map[string]any
// @Router   /inventory/availability [get]
func (h *Handler) Availability(c *gin.Context) {
	q := AvailabilityQuery{From: c.Query("from"), To: c.Query("to")}
	if v := strings.TrimSpace(c.Query("exclude_order_id")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			apierr.BadRequest(c, "exclude_order_id must be a positive integer")
			return
		}
		q.ExcludeOrderID = &n
	}
	res, err := h.svc.Availability(c.Request.Context(), q)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ApplyTransition godoc
// @Summary  Apply a stock transition (reprice / retire / move / default)
// @Tags     inventory
// @Accept   json
// @Produce  json
// @Param    body body TransitionRequest true "transition"
// @Success  200 {object} TransitionResponse
// @Failure  409 {object} map[string]any
// @Router   /inventory/transitions [post]
func (h *Handler) ApplyTransition(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// quantity/price の型不正もここで弾く（書き込み前）
		apierr.BadRequest(c, "invalid json: "+err.Error())
		return
	}
	res, err := h.svc.ApplyTransition(c.Request.Context(), req, c.GetString(auth.CtxUserIDKey))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListUnits(c *gin.Context) {
	var typeID *int64
	if v := c.Query("unit_type_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			apierr.BadRequest(c, "unit_type_id must be a number")
			return
		}
		typeID = &n
	}
	items, err := h.svc.ListUnits(c.Request.Context(), c.Query("state"), typeID)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) ListMovements(c *gin.Context) {
	f := MovementFilter{Action: c.Query("action")}
	if v := c.Query("unit_type_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			apierr.BadRequest(c, "unit_type_id must be a number")
			return
		}
		f.UnitTypeID = &n
	}
	p := Page{
		Limit:  atoiDef(c.Query("limit"), 50),
		Offset: atoiDef(c.Query("offset"), 0),
		Order:  strings.ToLower(c.DefaultQuery("order", "desc")),
	}
	items, total, err := h.svc.ListMovements(c.Request.Context(), f, p)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	p = normalizePage(p)
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "next_offset": nextOffset(total, p)})
}

// ===== helpers =====

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		apierr.BadRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

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
