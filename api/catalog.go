package api

import (
	"net/http"

	"github.com/EPecherkin/catty-bills/catalog"
	"github.com/gin-gonic/gin"
)

func (api *Api) createShop(c *gin.Context) {
	var input catalog.NewShop
	if err := c.ShouldBindJSON(&input); err != nil {
		api.invalid(c, err, "invalid shop")
		return
	}
	shop, err := api.services.Catalog.CreateShop(c.Request.Context(), input)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, shop)
}

func (api *Api) listShops(c *gin.Context) {
	page, err := pageQuery(c)
	if err != nil {
		api.respondError(c, err)
		return
	}
	shops, total, err := api.services.Catalog.ListShops(c.Request.Context(), page)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shops": shops, "pagination": newPagination(page, total)})
}

func (api *Api) createCategory(c *gin.Context) {
	var input catalog.NewCategory
	if err := c.ShouldBindJSON(&input); err != nil {
		api.invalid(c, err, "invalid category")
		return
	}
	category, err := api.services.Catalog.CreateCategory(c.Request.Context(), input)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (api *Api) listCategories(c *gin.Context) {
	page, err := pageQuery(c)
	if err != nil {
		api.respondError(c, err)
		return
	}
	categories, total, err := api.services.Catalog.ListCategories(c.Request.Context(), page)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories, "pagination": newPagination(page, total)})
}

func (api *Api) updateCategory(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		api.respondError(c, err)
		return
	}
	var patch catalog.CategoryPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		api.invalid(c, err, "invalid category patch")
		return
	}
	category, err := api.services.Catalog.UpdateCategory(c.Request.Context(), id, patch)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (api *Api) categoryChildren(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		api.respondError(c, err)
		return
	}
	children, err := api.services.Catalog.Children(c.Request.Context(), id)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": children})
}

func (api *Api) createIndex(c *gin.Context) {
	var input catalog.NewIndex
	if err := c.ShouldBindJSON(&input); err != nil {
		api.invalid(c, err, "invalid index")
		return
	}
	index, err := api.services.Catalog.CreateIndex(c.Request.Context(), input)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, index)
}

func (api *Api) listIndexes(c *gin.Context) {
	page, err := pageQuery(c)
	if err != nil {
		api.respondError(c, err)
		return
	}
	indexes, total, err := api.services.Catalog.ListIndexes(c.Request.Context(), page)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"indexes": indexes, "pagination": newPagination(page, total)})
}
