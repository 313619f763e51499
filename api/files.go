package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/EPecherkin/catty-bills/files"
	"github.com/gin-gonic/gin"
)

func (api *Api) serveFile(c *gin.Context, info *files.FileInfo, err error) {
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.Header("Content-Type", info.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", info.Name))
	c.File(info.Path)
}

func (api *Api) describeFile(c *gin.Context, info *files.FileInfo, err error) {
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "file_info": info})
}

func wildcardPath(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("path"), "/")
}

func (api *Api) rawFile(c *gin.Context) {
	info, err := api.services.Resolver.Existing(wildcardPath(c))
	api.serveFile(c, info, err)
}

func (api *Api) fileInfo(c *gin.Context) {
	info, err := api.services.Resolver.Existing(wildcardPath(c))
	api.describeFile(c, info, err)
}

func (api *Api) billFile(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		api.respondError(c, err)
		return
	}
	info, err := api.services.Resolver.ByBill(c.Request.Context(), id)
	api.serveFile(c, info, err)
}

func (api *Api) billFileInfo(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		api.respondError(c, err)
		return
	}
	info, err := api.services.Resolver.ByBill(c.Request.Context(), id)
	api.describeFile(c, info, err)
}

func (api *Api) messageFile(c *gin.Context) {
	id, err := idParam(c, "message_id")
	if err != nil {
		api.respondError(c, err)
		return
	}
	info, err := api.services.Resolver.ByMessage(c.Request.Context(), id)
	api.serveFile(c, info, err)
}

func (api *Api) messageFileInfo(c *gin.Context) {
	id, err := idParam(c, "message_id")
	if err != nil {
		api.respondError(c, err)
		return
	}
	info, err := api.services.Resolver.ByMessage(c.Request.Context(), id)
	api.describeFile(c, info, err)
}
