package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/EPecherkin/catty-bills/apperr"
	"github.com/EPecherkin/catty-bills/chatter"
	"github.com/EPecherkin/catty-bills/db"
	"github.com/EPecherkin/catty-bills/logger"
	"github.com/EPecherkin/catty-bills/messenger/base"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/samber/lo"
)

type sendMessageRequest struct {
	ChatID int64  `form:"chat_id" json:"chat_id"`
	Text   string `form:"text" json:"text"`
	// Message is accepted as an alias of Text.
	Message string `form:"message" json:"message"`
}

type setWebhookRequest struct {
	URL string `form:"url" json:"url"`
}

type setCommandsRequest struct {
	Commands []base.Command `json:"commands"`
}

const UPDATE_FIELD = "update"

var DEFAULT_COMMANDS = []base.Command{
	{Command: "start", Description: "Welcome message"},
	{Command: "help", Description: "Help and instructions"},
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// webhook answers with {status, message} whatever happens, the update
// format never leaks into the response.
func (api *Api) webhook(c *gin.Context) {
	lgr := api.logger(c)
	body, err := webhookBody(c)
	if err != nil {
		lgr.With(logger.ERROR, err).Warn("Failed to read webhook body")
		c.JSON(http.StatusBadRequest, statusResponse{Status: "error", Message: "Invalid webhook data: " + apperr.Message(err)})
		return
	}

	update, err := chatter.ParseUpdate(body)
	if err != nil {
		lgr.With(logger.ERROR, err).Warn("Rejected webhook")
		c.JSON(http.StatusBadRequest, statusResponse{Status: "error", Message: "Invalid webhook data: " + apperr.Message(err)})
		return
	}

	outcome, err := api.services.Chatter.HandleUpdate(c.Request.Context(), *update)
	if err != nil {
		status := http.StatusInternalServerError
		if apperr.Is(err, apperr.InvalidPayload) {
			status = http.StatusBadRequest
		}
		c.JSON(status, statusResponse{Status: "error", Message: "Failed to process webhook"})
		return
	}

	message := "Webhook processed successfully"
	if outcome == chatter.OutcomeDuplicate {
		message = "Duplicate update ignored"
	}
	c.JSON(http.StatusOK, statusResponse{Status: "success", Message: message})
}

// webhookBody returns the update JSON. Form posts carry it in the UPDATE_FIELD field.
func webhookBody(c *gin.Context) ([]byte, error) {
	switch c.ContentType() {
	case binding.MIMEPOSTForm, binding.MIMEMultipartPOSTForm:
		raw, ok := c.GetPostForm(UPDATE_FIELD)
		if !ok {
			return nil, apperr.New(apperr.InvalidPayload, "form has no %q field", UPDATE_FIELD)
		}
		return []byte(raw), nil
	}
	body, err := c.GetRawData()
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidPayload, err, "reading body")
	}
	return body, nil
}

func (api *Api) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBind(&req); err != nil {
		api.invalid(c, err, "invalid message")
		return
	}
	text := lo.Ternary(req.Text != "", req.Text, req.Message)
	if req.ChatID == 0 || strings.TrimSpace(text) == "" {
		api.respondError(c, apperr.New(apperr.InvalidPayload, "chat_id and text are required"))
		return
	}
	if err := api.services.Messenger.SendText(c.Request.Context(), req.ChatID, text); err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{Status: "success", Message: "Message sent successfully"})
}

func (api *Api) setWebhook(c *gin.Context) {
	var req setWebhookRequest
	if err := c.ShouldBind(&req); err != nil {
		api.invalid(c, err, "invalid webhook request")
		return
	}
	url := lo.Ternary(req.URL != "", req.URL, api.opts.WebhookURL)
	if url == "" {
		api.respondError(c, apperr.New(apperr.InvalidPayload, "url is required"))
		return
	}
	if err := api.services.Messenger.SetWebhook(c.Request.Context(), url); err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{Status: "success", Message: "Webhook set to " + url})
}

func (api *Api) setCommands(c *gin.Context) {
	var req setCommandsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			api.invalid(c, err, "invalid commands")
			return
		}
	}
	commands := lo.Ternary(len(req.Commands) > 0, req.Commands, DEFAULT_COMMANDS)
	if err := api.services.Messenger.SetCommands(c.Request.Context(), commands); err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"message":  "Commands set successfully",
		"commands": lo.Map(commands, func(command base.Command, _ int) string { return "/" + command.Command }),
	})
}

func (api *Api) botInfo(c *gin.Context) {
	info, err := api.services.Messenger.BotInfo(c.Request.Context())
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "bot_info": info})
}

func (api *Api) telegramHealth(c *gin.Context) {
	if !api.opts.TelegramConfigured {
		c.JSON(http.StatusOK, gin.H{
			"status":            "error",
			"message":           "Missing Telegram configuration",
			"missing_variables": []string{"TELEGRAM_TOKEN"},
		})
		return
	}
	c.JSON(http.StatusOK, statusResponse{Status: "healthy", Message: "Telegram integration is configured"})
}

func (api *Api) listMessages(c *gin.Context) {
	filter, err := messageFilter(c)
	if err != nil {
		api.respondError(c, err)
		return
	}
	api.respondMessages(c, filter)
}

func (api *Api) chatMessages(c *gin.Context) {
	chatID, err := int64Param(c, "chat_id")
	if err != nil {
		api.respondError(c, err)
		return
	}
	filter, err := messageFilter(c)
	if err != nil {
		api.respondError(c, err)
		return
	}
	filter.ChatID = &chatID
	api.respondMessages(c, filter)
}

func (api *Api) respondMessages(c *gin.Context, filter chatter.MessageFilter) {
	messages, total, err := api.services.Chatter.Messages(c.Request.Context(), filter)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "pagination": newPagination(filter.Page, total), "messages": messages})
}

func messageFilter(c *gin.Context) (chatter.MessageFilter, error) {
	page, err := pageQuery(c)
	if err != nil {
		return chatter.MessageFilter{}, err
	}
	filter := chatter.MessageFilter{Page: page}
	if raw := c.Query("chat_id"); raw != "" {
		chatID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return chatter.MessageFilter{}, apperr.New(apperr.InvalidPayload, "chat_id must be an integer, got %q", raw)
		}
		filter.ChatID = &chatID
	}
	if raw := c.Query("message_type"); raw != "" {
		messageType := db.MessageType(strings.ToLower(raw))
		filter.Type = &messageType
	}
	if raw := c.Query("status"); raw != "" {
		status := db.MessageStatus(strings.ToLower(raw))
		filter.Status = &status
	}
	return filter, nil
}

func (api *Api) getMessage(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		api.respondError(c, err)
		return
	}
	message, err := api.services.Chatter.Message(c.Request.Context(), id)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": message})
}

func (api *Api) searchMessages(c *gin.Context) {
	page, err := pageQuery(c)
	if err != nil {
		api.respondError(c, err)
		return
	}
	query := c.Query("query")
	messages, total, err := api.services.Chatter.Search(c.Request.Context(), query, page)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "search_query": query, "pagination": newPagination(page, total), "messages": messages})
}

func (api *Api) messageStats(c *gin.Context) {
	stats, err := api.services.Chatter.Stats(c.Request.Context())
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "stats": stats})
}
