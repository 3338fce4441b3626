// Package middleware provides the HTTP middleware the sunmao server mounts
// on its chi router.
//
// # Prometheus Metrics
//
// Prometheus collects request metrics labelled by route pattern, so that
// /api/store/input1 and /api/store/text1 share one series:
//
//   - sunmao_http_requests_total: requests by route, method and status class
//   - sunmao_http_request_duration_seconds: request latency histogram
//   - sunmao_http_request_errors_total: 5xx responses by route
//   - sunmao_websocket_connections: open WebSocket connections
//   - sunmao_websocket_messages_total: WebSocket messages by direction and type
//
//	m := middleware.NewMetrics(middleware.WithRegistry(reg))
//	r := chi.NewRouter()
//	r.Use(m.Handler)
//
// # OpenTelemetry
//
// OpenTelemetry starts a server span per request and stores it in the
// request context, so runtime spans started by handlers become children:
//
//	r.Use(middleware.OpenTelemetry(
//	    middleware.WithTracerName("sunmao"),
//	    middleware.WithFilter(func(r *http.Request) bool {
//	        return r.URL.Path != "/healthz"
//	    }),
//	))
//
// The tracer comes from the global provider unless WithTracerProvider is
// given. Configure the provider in main() before starting the server.
package middleware
