package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/iabetor/aeronews/internal/logger"
	"github.com/iabetor/aeronews/internal/subscriber"
)

const (
	msgEmailRequired      = "Email is required"
	msgIdentifierRequired = "Email or unsubscribe token is required"
	msgInvalidBody        = "Invalid request body"
	msgSubscribeFailed    = "An error occurred during subscription"
	msgUnsubscribeFailed  = "An error occurred during unsubscription"
)

// formRequest 同时支持 JSON 和表单提交。
type formRequest struct {
	Email string `json:"email" form:"email"`
	Name  string `json:"name" form:"name"`
	Token string `json:"token" form:"token"`
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

// respond 按结果写回 JSON：成功 200，持久化失败 500，其他失败 400。
func respond(c *gin.Context, res subscriber.Result, err error, internalMessage string) {
	switch {
	case err == nil:
		// 响应中不返回退订令牌
		res.Subscriber = nil
		c.JSON(http.StatusOK, res)
	case subscriber.KindOf(err) == subscriber.KindPersistence || subscriber.KindOf(err) == 0:
		logger.Errorf("[server] %s: %v", internalMessage, err)
		fail(c, http.StatusInternalServerError, internalMessage)
	default:
		c.JSON(http.StatusBadRequest, res)
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index", gin.H{"Stats": s.store.Stats()})
}

func (s *Server) handleSubscribe(c *gin.Context) {
	var req formRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, msgInvalidBody)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		fail(c, http.StatusBadRequest, msgEmailRequired)
		return
	}

	sub, err := s.store.Subscribe(email, req.Name)
	respond(c, subscriber.NewResult(email, &sub, err, subscriber.MsgSubscribed), err, msgSubscribeFailed)
}

func (s *Server) handleUnsubscribeForm(c *gin.Context) {
	email := c.Query("email")
	token := c.Query("token")
	if email == "" && token != "" {
		if sub, ok := s.store.Lookup(token); ok {
			email = sub.Email
		}
	}
	c.HTML(http.StatusOK, "unsubscribe", gin.H{"Email": email, "Token": token})
}

func (s *Server) handleUnsubscribe(c *gin.Context) {
	var req formRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, msgInvalidBody)
		return
	}
	email := strings.TrimSpace(req.Email)
	token := strings.TrimSpace(req.Token)
	if email == "" && token == "" {
		fail(c, http.StatusBadRequest, msgIdentifierRequired)
		return
	}

	sub, err := s.store.Unsubscribe(email, token)
	respond(c, subscriber.NewResult(email, &sub, err, subscriber.MsgUnsubscribed), err, msgUnsubscribeFailed)
}

func (s *Server) handleAdmin(c *gin.Context) {
	c.HTML(http.StatusOK, "admin", gin.H{
		"Subscribers": s.store.All(),
		"Stats":       s.store.Stats(),
	})
}

func (s *Server) handleAPISubscribers(c *gin.Context) {
	includeInactive := strings.EqualFold(c.DefaultQuery("include_inactive", "false"), "true")
	subs := s.store.Export(includeInactive)
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"subscribers": subs,
		"count":       len(subs),
	})
}

func (s *Server) handleAPIStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   s.store.Stats(),
	})
}
