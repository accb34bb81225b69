package common

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ISOLayout matches JavaScript's Date.prototype.toISOString.
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

func ISOTime(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Fail writes the {error} envelope every non-2xx response uses.
func Fail(c *gin.Context, httpStatus int, msg string) {
	c.AbortWithStatusJSON(httpStatus, gin.H{"error": msg})
}

// NoStore marks a response as uncacheable by browsers, proxies and CDNs.
func NoStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate, max-age=0")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
}
