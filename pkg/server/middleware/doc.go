// Package middleware provides the HTTP middleware chain of the TrialMonitor
// API: request ids, structured request logging, and panic recovery.
//
// Middleware is applied outermost first:
//
//	handler = middleware.Recovery(logger)(handler)
//	handler = middleware.Logging(logger)(handler)
//	handler = middleware.RequestID(handler)
//
// The request id is taken from the X-Request-ID header when the client sends
// one, otherwise a UUID is generated. It is echoed in the response and
// attached to every log record of the request.
package middleware
