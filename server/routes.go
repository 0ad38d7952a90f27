package server

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteIndex+"{$}", s.IndexHandler())

	// LOGIN
	s.RegisterRouteFunc("GET "+RouteLogin, s.LoginHandler())
	s.RegisterRouteFunc("GET "+RouteCallback, s.CallbackHandler())
	s.RegisterRouteFunc("GET "+RouteLogout, s.LogoutHandler())

	// SETUP
	s.RegisterRouteFunc("GET "+RouteSetup, s.SetupStatusHandler())
	s.RegisterRouteFunc("POST "+RouteSetup, s.SetupHandler())

	s.RegisterRouteFunc("GET "+RouteSession, s.SessionHandler())

	if s.metrics != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics)
	}
}
