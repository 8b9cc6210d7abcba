package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/challengehub/middleware"
	"github.com/cppla/challengehub/utils"
)

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

// requireUserID writes 401 and reports false when the request carries no identity.
func requireUserID(ctx *gin.Context) (uint, bool) {
	userID, ok := getUserID(ctx)
	if !ok || userID == 0 {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return 0, false
	}
	return userID, true
}

// paramID parses a positive numeric path parameter, writing 400 on failure.
func paramID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
