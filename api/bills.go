package api

import (
	"net/http"

	"github.com/EPecherkin/catty-bills/apperr"
	"github.com/EPecherkin/catty-bills/bills"
	"github.com/EPecherkin/catty-bills/db"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/shopspring/decimal"
)

type createBillRequest struct {
	UserID      uint             `json:"user_id"`
	BillDate    string           `json:"bill_date"`
	ShopID      *uint            `json:"shop_id"`
	TotalAmount *decimal.Decimal `json:"total_amount"`
	ImageURL    *string          `json:"image_url"`
}

type updateBillRequest struct {
	ShopID       *uint            `json:"shop_id"`
	BillDate     *string          `json:"bill_date"`
	TotalAmount  *decimal.Decimal `json:"total_amount"`
	ImageURL     *string          `json:"image_url"`
	Status       *db.BillStatus   `json:"status"`
	ErrorMessage *string          `json:"error_message"`
}

type addItemsRequest struct {
	Items []bills.NewBillItem `json:"items"`
}

func (api *Api) createBill(c *gin.Context) {
	var req createBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.invalid(c, err, "invalid bill")
		return
	}
	if req.UserID == 0 {
		api.respondError(c, apperr.New(apperr.InvalidPayload, "user_id is required"))
		return
	}
	billDate, err := parseDate(req.BillDate)
	if err != nil {
		api.respondError(c, err)
		return
	}

	input := bills.NewBill{UserID: req.UserID, BillDate: billDate, ShopID: req.ShopID, ImageURL: req.ImageURL}
	if req.TotalAmount != nil {
		input.TotalAmount = decimal.NewNullDecimal(*req.TotalAmount)
	}
	ctx := c.Request.Context()
	created, err := api.services.Bills.Create(ctx, input)
	if err != nil {
		api.respondError(c, err)
		return
	}
	bill, err := api.services.Bills.Get(ctx, created.ID)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bill)
}

func (api *Api) getBill(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		api.respondError(c, err)
		return
	}
	bill, err := api.services.Bills.Get(c.Request.Context(), id)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

func (api *Api) updateBill(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		api.respondError(c, err)
		return
	}
	var req updateBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.invalid(c, err, "invalid bill patch")
		return
	}

	patch := bills.BillPatch{
		ShopID:       req.ShopID,
		TotalAmount:  req.TotalAmount,
		ImageURL:     req.ImageURL,
		Status:       req.Status,
		ErrorMessage: req.ErrorMessage,
	}
	if req.BillDate != nil {
		billDate, err := parseDate(*req.BillDate)
		if err != nil {
			api.respondError(c, err)
			return
		}
		patch.BillDate = &billDate
	}

	bill, err := api.services.Bills.Update(c.Request.Context(), id, patch)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

func (api *Api) deleteBill(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		api.respondError(c, err)
		return
	}
	if err := api.services.Bills.Delete(c.Request.Context(), id); err != nil {
		api.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// addBillItems takes either a bare array of items or {"items": [...]}.
func (api *Api) addBillItems(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		api.respondError(c, err)
		return
	}
	var items []bills.NewBillItem
	if err := c.ShouldBindBodyWith(&items, binding.JSON); err != nil {
		var req addItemsRequest
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			api.invalid(c, err, "invalid items")
			return
		}
		items = req.Items
	}

	bill, err := api.services.Bills.AddItems(c.Request.Context(), id, items)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

func (api *Api) billSummary(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		api.respondError(c, err)
		return
	}
	summary, err := api.services.Bills.Summary(c.Request.Context(), id)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
