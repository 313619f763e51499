package api

import (
	"net/http"

	"github.com/EPecherkin/catty-bills/apperr"
	"github.com/EPecherkin/catty-bills/users"
	"github.com/gin-gonic/gin"
)

func (api *Api) createUser(c *gin.Context) {
	var input users.NewUser
	if err := c.ShouldBindJSON(&input); err != nil {
		api.invalid(c, err, "invalid user")
		return
	}
	if input.ExternalID == 0 {
		api.respondError(c, apperr.New(apperr.InvalidPayload, "external_id is required"))
		return
	}
	user, err := api.services.Users.Create(c.Request.Context(), input)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (api *Api) getUser(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		api.respondError(c, err)
		return
	}
	user, err := api.services.Users.Get(c.Request.Context(), id)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (api *Api) updateUser(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		api.respondError(c, err)
		return
	}
	var patch users.UserPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		api.invalid(c, err, "invalid user patch")
		return
	}
	user, err := api.services.Users.Update(c.Request.Context(), id, patch)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (api *Api) userBills(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		api.respondError(c, err)
		return
	}
	page, err := pageQuery(c)
	if err != nil {
		api.respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := api.services.Users.Get(ctx, id); err != nil {
		api.respondError(c, err)
		return
	}
	bills, total, err := api.services.Bills.ListByUser(ctx, id, page)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bills": bills, "pagination": newPagination(page, total)})
}
