package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/crewdrive/crewdrive/internal/common/auth"
	"github.com/crewdrive/crewdrive/internal/common/config"
	"github.com/crewdrive/crewdrive/internal/common/logger"
	"github.com/crewdrive/crewdrive/internal/common/middleware"
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

const authInfoKey = "crewdrive/auth-info"

// AuthInfo 从 JWT 中解析出的最小用户信息（放入 gin.Context，供业务侧使用）。
type AuthInfo struct {
	Subject string   // 用户 ID
	Roles   []string // 角色列表（RBAC）
}

// AuthFromContext 从请求上下文中取出鉴权信息。
func AuthFromContext(c *gin.Context) (AuthInfo, bool) {
	v, ok := c.Get(authInfoKey)
	if !ok {
		return AuthInfo{}, false
	}
	ai, ok := v.(AuthInfo)
	return ai, ok
}

// Recovery 防止 panic 直接把进程打崩，并记录栈信息。
func Recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				if log != nil {
					log.Errorf("panic in http route=%s err=%v stack=%s", c.FullPath(), r, string(debug.Stack()))
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}

// AccessLog 记录每个 HTTP 请求的耗时/状态。
func AccessLog(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		cost := time.Since(start)

		if log != nil {
			fields := map[string]interface{}{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
				"status": c.Writer.Status(),
				"cost":   cost.String(),
			}
			if len(c.Errors) > 0 {
				fields["error"] = c.Errors.String()
			}
			if c.Writer.Status() >= http.StatusBadRequest {
				log.WithFields(fields).Warn("http request failed")
			} else {
				log.WithFields(fields).Info("http request ok")
			}
		}
	}
}

// Tracing 基于 OpenTracing 的最小 server middleware：
// - 从请求头里提取 span context（uber-trace-id 等，取决于上游注入格式）
// - 创建 server span，并注入到 request ctx，方便业务侧 StartSpanFromContext 使用
func Tracing(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tracer := opentracing.GlobalTracer()

		var parent opentracing.SpanContext
		if sc, err := tracer.Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(c.Request.Header)); err == nil {
			parent = sc
		}

		operation := fmt.Sprintf("%s %s", c.Request.Method, c.FullPath())

		var span opentracing.Span
		if parent != nil {
			span = tracer.StartSpan(operation, ext.RPCServerOption(parent))
		} else {
			span = tracer.StartSpan(operation)
		}
		defer span.Finish()

		ext.SpanKindRPCServer.Set(span)
		ext.Component.Set(span, "http")
		ext.HTTPMethod.Set(span, c.Request.Method)
		ext.HTTPUrl.Set(span, c.Request.URL.Path)
		if serviceName != "" {
			span.SetTag("service", serviceName)
		}

		c.Request = c.Request.WithContext(opentracing.ContextWithSpan(c.Request.Context(), span))
		c.Next()

		ext.HTTPStatusCode.Set(span, uint16(c.Writer.Status()))
	}
}

// JWTAuth 用于 JWT 鉴权：
// - 从 `Authorization: Bearer <token>` 读取 token
// - 校验签名与标准字段，结果写入 gin.Context
func JWTAuth(cfg config.AuthConfig, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}
		if isPublicPath(cfg.PublicPaths, c.Request.URL.Path) {
			c.Next()
			return
		}
		if strings.TrimSpace(cfg.JWTSecret) == "" {
			if log != nil {
				log.Warn("auth enabled but jwt_secret is empty")
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "auth not configured"})
			return
		}

		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		tokenStr := raw
		if strings.HasPrefix(strings.ToLower(tokenStr), "bearer ") {
			tokenStr = strings.TrimSpace(tokenStr[len("bearer "):])
		}

		claims, err := auth.ParseAccessToken(cfg, tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(authInfoKey, AuthInfo{
			Subject: claims.Subject,
			Roles:   claims.Roles,
		})
		c.Next()
	}
}

// RBAC 基于 "METHOD /path" -> roles 的简单角色校验：
// - 若某路由配置了要求角色，则 token roles 必须与之有交集
// - 未配置的路由默认放行（即"只鉴权，不限权"）
func RBAC(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}
		if isPublicPath(cfg.PublicPaths, c.Request.URL.Path) {
			c.Next()
			return
		}

		key := c.Request.Method + " " + c.FullPath()
		required := cfg.RBAC[key]
		if len(required) == 0 {
			c.Next()
			return
		}

		ai, ok := AuthFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}
		if hasAnyRole(ai.Roles, required) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
	}
}

// RateLimit 超过限流阈值时直接拒绝请求。
func RateLimit(limiter middleware.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter != nil && !limiter.Allow(c.Request.Context()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func isPublicPath(public []string, path string) bool {
	for _, p := range public {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func hasAnyRole(got, required []string) bool {
	if len(got) == 0 || len(required) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(got))
	for _, r := range got {
		r = strings.TrimSpace(strings.ToLower(r))
		if r == "" {
			continue
		}
		set[r] = struct{}{}
	}
	for _, r := range required {
		r = strings.TrimSpace(strings.ToLower(r))
		if r == "" {
			continue
		}
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}
