package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/taktline/takt/internal/auth"
	"github.com/taktline/takt/internal/presence"
	"github.com/taktline/takt/internal/process"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// isSafeID validates process and worker ids used as keys.
// Allowed characters: A-Z a-z 0-9 . _ -
func isSafeID(s string) bool {
	if s == "" || strings.Contains(s, "..") {
		return false
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// writeError maps engine errors to HTTP statuses: rejected transitions and
// presence conflicts are 409, authorization denials 403, anything else 400.
func writeError(c *gin.Context, err error) {
	code := http.StatusBadRequest
	var ae *auth.AuthzError
	switch {
	case errors.Is(err, process.ErrInvalidTransition),
		errors.Is(err, presence.ErrPresenceConflict),
		errors.Is(err, presence.ErrNotCheckedIn):
		code = http.StatusConflict
	case errors.As(err, &ae):
		code = http.StatusForbidden
	}
	writeJSON(c, code, errorResp{Error: err.Error()})
}
