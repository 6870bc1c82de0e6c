// Package api implements the HTTP surface of the SSO core: the primary
// login and handshake-callback endpoints for users, the validate and stats
// endpoints for relying services, and the session-management endpoints for
// token holders.
package api
