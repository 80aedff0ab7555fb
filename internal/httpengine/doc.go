// Package httpengine implements the HttpServerEngine (spec §4.1): a
// connection registry with a score-based drop policy (§4.10) layered over
// github.com/gofiber/fiber/v2 and its github.com/valyala/fasthttp
// transport, exactly the stack the teacher (netresearch/ldap-manager)
// depends on for its own HTTP surface.
//
// Fiber/fasthttp already implements RFC 7231 HTTP/1.1 parsing (request
// line, header block, chunked transfer, Content-Length, Expect:
// 100-continue, keep-alive), so this package is an additive layer: one
// catch-all fiber.App.Use middleware (method-agnostic, so the WebDAV verb
// extensions in §4.1 (PROPFIND, PROPPATCH, MKCOL, MOVE, COPY, LOCK,
// UNLOCK, REPORT, PATCH) flow through unchanged instead of needing a
// per-verb route) that bridges fasthttp's RequestCtx to the orchestrator's
// Handler contract, plus a tracked net.Listener that assigns each accepted
// connection a ConnID for the §4.10 drop policy.
package httpengine
