package server

const (
	RouteAuthLogin   = "/auth/login"
	RouteAuthRefresh = "/auth/refresh"
	RouteAuthLogout  = "/auth/logout"

	RouteAPIUsers    = "/api/users"
	RouteAPIUserByID = "/api/users/{id}"
	RouteAPIMe       = "/api/me"
)

// Cookie names shared with the refresh protocol on the client side.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)
