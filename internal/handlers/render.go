package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/muandane/ziria/internal/avatar"
	"github.com/muandane/ziria/internal/identity"
	"github.com/muandane/ziria/internal/imaging"
)

type Renderer interface {
	Avatar(ctx context.Context, req avatar.AvatarRequest) (*avatar.Result, error)
	Skin(ctx context.Context, req avatar.SkinRequest) (*avatar.Result, error)
}

// RenderHandler serves the avatar and skin routes.
type RenderHandler struct {
	renderer Renderer
	maxAge   time.Duration
	logger   *slog.Logger
}

func NewRenderHandler(renderer Renderer, maxAge time.Duration, logger *slog.Logger) (*RenderHandler, error) {
	if renderer == nil {
		return nil, fmt.Errorf("renderer cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderHandler{
		renderer: renderer,
		maxAge:   maxAge,
		logger:   logger,
	}, nil
}

// Avatar handles GET /avatar/:token/:size/:helm.
func (h *RenderHandler) Avatar(c *gin.Context) {
	token, err := parseToken(c.Param("token"))
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	size, err := parseSize(c.Param("size"))
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	helm, err := strconv.ParseBool(c.Param("helm"))
	if err != nil {
		handleError(c, h.logger, &avatar.ValidationError{Field: "helm", Message: "must be true or false"})
		return
	}

	res, err := h.renderer.Avatar(c.Request.Context(), avatar.AvatarRequest{
		Token: token,
		Size:  size,
		Helm:  helm,
	})
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	if res.CacheHit {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	h.write(c, res)
}

// Skin handles GET /skin/:token and GET /skin/:token/:size. The size
// defaults to the texture's own.
func (h *RenderHandler) Skin(c *gin.Context) {
	token, err := parseToken(c.Param("token"))
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	size := imaging.TextureSize
	if raw := c.Param("size"); raw != "" {
		if size, err = parseSize(raw); err != nil {
			handleError(c, h.logger, err)
			return
		}
	}

	res, err := h.renderer.Skin(c.Request.Context(), avatar.SkinRequest{Token: token, Size: size})
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	h.write(c, res)
}

func (h *RenderHandler) write(c *gin.Context, res *avatar.Result) {
	c.Header("Cache-Control", "max-age="+strconv.Itoa(int(h.maxAge.Seconds())))
	c.Data(http.StatusOK, res.ContentType, res.Data)
}

func parseToken(raw string) (identity.Token, error) {
	token, err := identity.ParseToken(raw)
	if err != nil {
		return identity.Token{}, &avatar.ValidationError{Field: "token", Message: err.Error()}
	}
	return token, nil
}

func parseSize(raw string) (int, error) {
	size, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &avatar.ValidationError{Field: "size", Message: "must be an integer"}
	}
	return size, nil
}
