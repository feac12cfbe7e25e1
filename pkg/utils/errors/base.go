package errors

import "net/http"

// Common errors shared by all endpoints.
var (
	ErrBadRequest    = Register(New(MakeCode(ServiceCommon, CategoryRequest, 0), http.StatusBadRequest, "Bad request", "请求错误"))
	ErrRouteNotFound = Register(New(MakeCode(ServiceCommon, CategoryResource, 1), http.StatusNotFound, "Route not found", "路由不存在"))
	ErrInternal      = Register(New(MakeCode(ServiceCommon, CategoryInternal, 0), http.StatusInternalServerError, "Internal server error", "服务器内部错误"))
	ErrPanic         = Register(New(MakeCode(ServiceCommon, CategoryInternal, 1), http.StatusInternalServerError, "Internal server panic", "服务器内部异常"))
)
