package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"faceattend/internal/auth"
	"faceattend/internal/checkin"
	"faceattend/internal/enrollment"
	"faceattend/internal/face"
)

type registerRequest struct {
	Name   string   `json:"name" form:"name"`
	Images []string `json:"images"`
}

type identifyRequest struct {
	Image  string   `json:"image" form:"image"`
	Images []string `json:"images"`
	Type   string   `json:"type" form:"type"`
}

func failure(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "message": msg})
}

func isJSON(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "application/json")
}

// formImages reads a form field holding a JSON array of base64 images.
func formImages(c *gin.Context, field string) ([]string, bool) {
	raw := c.PostForm(field)
	if raw == "" {
		return nil, true
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false
	}
	return out, true
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if isJSON(c) {
		if err := c.ShouldBindJSON(&req); err != nil {
			failure(c, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		req.Name = c.PostForm("name")
		imgs, ok := formImages(c, "images")
		if !ok {
			failure(c, http.StatusBadRequest, "images must be a JSON array")
			return
		}
		req.Images = imgs
	}

	images := face.DecodeAll(req.Images)
	if len(images) == 0 {
		failure(c, http.StatusBadRequest, enrollment.MsgNoImages)
		return
	}

	res, err := s.enroller.Enroll(c.Request.Context(), req.Name, images)
	if err != nil {
		s.log.Error("enrollment failed", zap.String("name", req.Name), zap.Error(err))
		failure(c, http.StatusInternalServerError, err.Error())
		return
	}
	if res.Message == enrollment.MsgNameRequired {
		c.JSON(http.StatusBadRequest, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) identify(c *gin.Context) {
	var req identifyRequest
	if isJSON(c) {
		if err := c.ShouldBindJSON(&req); err != nil {
			failure(c, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		req.Image = c.PostForm("image")
		req.Type = c.PostForm("type")
		imgs, ok := formImages(c, "images")
		if !ok {
			failure(c, http.StatusBadRequest, "images must be a JSON array")
			return
		}
		req.Images = imgs
	}
	if req.Image != "" {
		req.Images = append(req.Images, req.Image)
	}
	if strings.TrimSpace(req.Type) == "" {
		failure(c, http.StatusBadRequest, "type is required")
		return
	}

	frames := face.DecodeAll(req.Images)
	if len(frames) == 0 {
		failure(c, http.StatusBadRequest, checkin.MsgInvalidImage)
		return
	}

	res, err := s.identifier.Identify(c.Request.Context(), frames, req.Type)
	if err != nil {
		s.log.Error("identify failed", zap.Error(err))
		failure(c, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	switch res.Outcome {
	case checkin.OutcomeNoImages, checkin.OutcomeNotLive:
		status = http.StatusBadRequest
	}
	c.JSON(status, res)
}

func (s *Server) listHistory(c *gin.Context) {
	events, err := s.history.History(c.Request.Context())
	if err != nil {
		s.log.Error("read history failed", zap.Error(err))
		failure(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.opts.Health {
		if err := check(c.Request.Context()); err != nil {
			body[name] = err.Error()
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		body[name] = "ok"
	}
	c.JSON(status, body)
}

func (s *Server) registerDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}
	tokens, err := s.opts.Issuer.Issue(req.DeviceID, auth.RoleKiosk)
	if err != nil {
		s.log.Error("token issue failed", zap.Error(err))
		failure(c, http.StatusInternalServerError, "token issue failed")
		return
	}
	s.log.Info("device registered", zap.String("device_id", req.DeviceID))
	c.JSON(http.StatusCreated, tokens)
}

func (s *Server) refreshDevice(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}
	tokens, err := s.opts.Issuer.Refresh(req.RefreshToken)
	if err != nil {
		failure(c, http.StatusUnauthorized, "invalid token")
		return
	}
	c.JSON(http.StatusOK, tokens)
}
