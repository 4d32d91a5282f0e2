package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/framevault/internal/apperrors"
	"github.com/framevault/internal/auth"
	"github.com/framevault/internal/middleware"
	"github.com/framevault/internal/models"
)

// ========================================
// 认证相关 Handlers
// ========================================

// writeError 统一错误出口：状态码 + 稳定错误码 + 可读信息
func writeError(c *gin.Context, err error) {
	c.JSON(apperrors.HTTPStatus(err), gin.H{
		"error": err.Error(),
		"code":  apperrors.Code(err),
	})
}

// handleRegister 处理用户注册
func handleRegister(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apperrors.ErrValidation.Wrap(err))
			return
		}

		resp, err := authService.Register(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// handleLogin 处理用户登录
func handleLogin(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apperrors.ErrValidation.Wrap(err))
			return
		}

		resp, err := authService.Login(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// handleGetMe 获取当前用户信息
func handleGetMe(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			writeError(c, apperrors.ErrUnauthorized.New("未认证"))
			return
		}

		user, err := authService.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

// handleLogout 全端登出
func handleLogout(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := middleware.TokenClaims(c)
		if !ok {
			writeError(c, apperrors.ErrUnauthorized.New("未认证"))
			return
		}

		if err := authService.Logout(c.Request.Context(), claims); err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "已登出"})
	}
}

// handleUpdateLoopDelay 更新客户端轮播间隔
func handleUpdateLoopDelay(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			writeError(c, apperrors.ErrUnauthorized.New("未认证"))
			return
		}

		var req models.UpdateLoopDelayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apperrors.ErrValidation.Wrap(err))
			return
		}

		if err := authService.UpdateLoopDelay(c.Request.Context(), userID, *req.LoopDelay); err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"loopDelay": *req.LoopDelay})
	}
}
