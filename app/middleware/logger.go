package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"execq/pkg/logger"

	"github.com/gin-gonic/gin"
)

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		// Capture the body of mutating requests before the handler consumes it
		var bodyStr string
		if c.Request.Method == http.MethodPost {
			bodyStr = getRequestBody(c)
		}

		c.Next()

		if c.Writer.Status() == http.StatusNotFound {
			return
		}

		latency := time.Since(startTime)
		msg := "[GIN] " + c.Request.Method + " " + c.Request.RequestURI
		if bodyStr != "" {
			logger.InfoCtx(c.Request.Context(), "%s | %3d | %13v | %15s | body: %s",
				msg, c.Writer.Status(), latency, c.ClientIP(), bodyStr)
			return
		}
		logger.InfoCtx(c.Request.Context(), "%s | %3d | %13v | %15s",
			msg, c.Writer.Status(), latency, c.ClientIP())
	}
}

// getRequestBody reads and restores the request body
func getRequestBody(c *gin.Context) string {
	var bodyBytes []byte
	if c.Request.Body != nil {
		bodyBytes, _ = io.ReadAll(c.Request.Body)
		// Reading clears the body, put it back for the handler
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}
	return compressBody(bodyBytes)
}

// compressBody compacts JSON and truncates oversized bodies
func compressBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err == nil {
		body = buf.Bytes()
	}
	if len(body) > 1000 {
		return string(body[:1000]) + "..."
	}
	return string(body)
}
