package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// FormatValidationError formats validation errors into a readable string.
func FormatValidationError(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", e.Field()))
		case "email":
			messages = append(messages, fmt.Sprintf("%s must be a valid email", e.Field()))
		case "min", "max", "gt", "gte", "lt", "lte":
			messages = append(messages, fmt.Sprintf("%s must satisfy %s=%s", e.Field(), e.Tag(), e.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed on the '%s' rule", e.Field(), e.Tag()))
		}
	}
	return strings.Join(messages, ", ")
}

// BindAndValidate binds the JSON body to obj and validates its binding tags.
// On failure it sends a BadRequest response and returns false.
func BindAndValidate(c *gin.Context, obj interface{}) bool {
	return bindResult(c, c.ShouldBindJSON(obj))
}

// BindForm binds a JSON, form or multipart body to obj according to the
// request content type.
func BindForm(c *gin.Context, obj interface{}) bool {
	return bindResult(c, c.ShouldBind(obj))
}

// BindQuery binds the query string to obj.
func BindQuery(c *gin.Context, obj interface{}) bool {
	return bindResult(c, c.ShouldBindQuery(obj))
}

func bindResult(c *gin.Context, err error) bool {
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		BadRequest(c, "Validation failed: "+FormatValidationError(err))
		return false
	}
	BadRequest(c, "Invalid request payload: "+err.Error())
	return false
}
