package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status int
	header http.Header
	body   []byte
}

type captureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache serves repeated GETs of the same URI from memory for the given
// TTL. The TV page polls the match list every second from several
// displays; a short TTL absorbs that burst without ever serving data
// older than the TTL. A "Cache-Control: no-cache" request header
// bypasses the cache.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}
		if c.GetHeader("Cache-Control") == "no-cache" {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if hit, found := store.Get(key); found {
			cached := hit.(cachedResponse)
			for k, v := range cached.header {
				c.Writer.Header()[k] = v
			}
			c.Writer.WriteHeader(cached.status)
			c.Writer.Write(cached.body)
			c.Abort()
			return
		}

		cw := &captureWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = cw

		c.Next()

		if cw.Status() >= 200 && cw.Status() < 300 {
			store.Set(key, cachedResponse{
				status: cw.Status(),
				header: cw.Header().Clone(),
				body:   cw.body.Bytes(),
			}, ttl)
		}
	}
}
