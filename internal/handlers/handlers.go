// Package handlers adapts the services to HTTP. Handlers bind and validate
// the request, call one service operation and write the standard envelope.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"careconnect-server/internal/middleware"
	"careconnect-server/internal/services"
	"careconnect-server/internal/utils"
)

// currentUser returns the authenticated user id or writes a 401.
func currentUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok || userID == "" {
		utils.Unauthorized(c, "User not authenticated")
		return "", false
	}
	return userID, true
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/")
}

// formFile opens the optional multipart file in field. The returned close
// function is never nil.
func formFile(c *gin.Context, field string) (*services.Upload, func(), error) {
	noop := func() {}
	if !isMultipart(c) {
		return nil, noop, nil
	}
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, err
	}
	file, err := header.Open()
	if err != nil {
		return nil, noop, err
	}
	return &services.Upload{Filename: header.Filename, Content: file}, func() { _ = file.Close() }, nil
}
