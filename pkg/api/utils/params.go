package utils

import (
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
)

// GetHeader returns a trimmed header value.
func GetHeader(ctx *fasthttp.RequestCtx, key string) string {
	return strings.TrimSpace(string(ctx.Request.Header.Peek(key)))
}

func GetHeaderLower(ctx *fasthttp.RequestCtx, key string) string {
	return strings.ToLower(GetHeader(ctx, key))
}

// GetQuery returns a trimmed query parameter.
func GetQuery(ctx *fasthttp.RequestCtx, key string) string {
	return strings.TrimSpace(string(ctx.QueryArgs().Peek(key)))
}

// GetQueryInt returns a query parameter as int, or def when absent or bad.
func GetQueryInt(ctx *fasthttp.RequestCtx, key string, def int) int {
	v := GetQuery(ctx, key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// GetQueryInt64 is GetQueryInt for nanosecond cursors.
func GetQueryInt64(ctx *fasthttp.RequestCtx, key string, def int64) int64 {
	v := GetQuery(ctx, key)
	if v == "" {
		return def
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	return def
}

// GetQueryList splits a comma separated query parameter, dropping blanks.
func GetQueryList(ctx *fasthttp.RequestCtx, key string) []string {
	v := GetQuery(ctx, key)
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GetPathParam returns a path parameter set by the router.
func GetPathParam(ctx *fasthttp.RequestCtx, param string) string {
	if v, ok := ctx.UserValue(param).(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// GetPath returns the request path as string.
func GetPath(ctx *fasthttp.RequestCtx) string {
	return string(ctx.Path())
}

// HasPathPrefix checks if the request path starts with prefix.
func HasPathPrefix(ctx *fasthttp.RequestCtx, prefix string) bool {
	return strings.HasPrefix(GetPath(ctx), prefix)
}
