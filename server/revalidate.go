package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonwraymond/rendercache/cache"
	"github.com/jonwraymond/rendercache/revalidate"
)

type revalidateHandler struct {
	router *revalidate.Router
}

type tagBody struct {
	Tag       string `json:"tag" binding:"required"`
	ExpireNow bool   `json:"expire_now"`
}

type pathBody struct {
	Path string `json:"path" binding:"required"`
	// Layout also matches every path below Path.
	Layout    bool `json:"layout"`
	ExpireNow bool `json:"expire_now"`
}

type batchItem struct {
	Kind      revalidate.Kind `json:"kind"`
	Target    string          `json:"target"`
	Layout    bool            `json:"layout"`
	ExpireNow bool            `json:"expire_now"`
}

type batchBody struct {
	Requests []batchItem `json:"requests" binding:"required,min=1"`
}

func granularity(layout bool) cache.Granularity {
	if layout {
		return cache.GranularityLayout
	}
	return cache.GranularityPage
}

func (h *revalidateHandler) tag(c *gin.Context) {
	var body tagBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.submit(c, revalidate.NewTagRequest(cache.Tag(body.Tag), body.ExpireNow))
}

func (h *revalidateHandler) path(c *gin.Context) {
	var body pathBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.submit(c, revalidate.NewPathRequest(body.Path, granularity(body.Layout), body.ExpireNow))
}

func (h *revalidateHandler) batch(c *gin.Context) {
	var body batchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reqs := make([]*revalidate.Request, 0, len(body.Requests))
	for _, item := range body.Requests {
		reqs = append(reqs, revalidate.NewRequest(item.Kind, item.Target, granularity(item.Layout), item.ExpireNow))
	}
	h.submit(c, reqs...)
}

func (h *revalidateHandler) submit(c *gin.Context, reqs ...*revalidate.Request) {
	report, err := h.router.Submit(c.Request.Context(), reqs...)
	switch {
	case errors.Is(err, revalidate.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": report})
	default:
		c.JSON(http.StatusOK, report)
	}
}
