package server

import "github.com/roadlog/fleet-auth/users"

func (s *Server) initRoutes() {
	// AUTH
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.apiMiddleware(s.LoginRateLimitMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.apiMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.apiMiddleware()...))

	// USERS (guards: authentication first, then per-route role sets)
	s.RegisterRouteHandler("GET "+RouteAPIMe, ChainMiddleware(s.MeHandler(), s.protectedMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPIUsers, ChainMiddleware(s.ListUsersHandler(), s.protectedMiddleware(s.RequireRoles(users.RoleAdmin))...))
	s.RegisterRouteHandler("POST "+RouteAPIUsers, ChainMiddleware(s.CreateUserHandler(), s.protectedMiddleware(s.RequireRoles(users.RoleAdmin))...))
	s.RegisterRouteHandler("GET "+RouteAPIUserByID, ChainMiddleware(s.GetUserHandler(), s.protectedMiddleware(s.RequireSelfOrRoles("id", users.RoleAdmin))...))
	s.RegisterRouteHandler("PUT "+RouteAPIUserByID, ChainMiddleware(s.UpdateUserHandler(), s.protectedMiddleware(s.RequireSelfOrRoles("id", users.RoleAdmin))...))
	s.RegisterRouteHandler("DELETE "+RouteAPIUserByID, ChainMiddleware(s.DeleteUserHandler(), s.protectedMiddleware(s.RequireRoles(users.RoleAdmin))...))
}

// apiMiddleware is the base chain for every JSON route. Returns a fresh
// slice each call so per-route additions never alias.
func (s *Server) apiMiddleware(mw ...Middleware) []Middleware {
	chain := []Middleware{
		s.RecoverMiddleware,
		s.LoggingMiddleware,
		s.CorsMiddleware,
	}
	return append(chain, mw...)
}

// protectedMiddleware is the base chain plus the authentication guard.
func (s *Server) protectedMiddleware(mw ...Middleware) []Middleware {
	return s.apiMiddleware(append([]Middleware{s.RequireAuth()}, mw...)...)
}
