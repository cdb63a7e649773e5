// Package models - Gatekeeper request descriptor.
// This file defines the normalized view of an inbound HTTP request that every
// gatekeeping component works on. No framework request types cross this boundary.
package models

import "strings"

// AnonymousIdentity is used wherever a caller IP or session cannot be resolved.
const AnonymousIdentity = "anonymous"

// RequestDescriptor is the normalized request the gatekeeper inspects.
//
// Field Sources:
// - Method/Path come from the request line (path without query string)
// - Origin/Referer/Host/ContentType/ForwardedFor mirror the request headers
// - CallerIP is the resolved client address, empty when unknown
// - SessionID is supplied by the session provider, empty when unauthenticated
//
// The request body is never part of the descriptor.
type RequestDescriptor struct {
	Method       string
	Path         string
	Origin       string
	Referer      string
	Host         string
	ContentType  string
	ForwardedFor string
	CallerIP     string
	SessionID    string
}

// Identity returns the caller IP used in rate-limit keys, or "anonymous".
func (d RequestDescriptor) Identity() string {
	if ip := strings.TrimSpace(d.CallerIP); ip != "" {
		return ip
	}
	return AnonymousIdentity
}

// Session returns the session identifier used for CSRF token binding, or "anonymous".
func (d RequestDescriptor) Session() string {
	if d.SessionID != "" {
		return d.SessionID
	}
	return AnonymousIdentity
}

// IsStateChanging reports whether the method can mutate server state.
func (d RequestDescriptor) IsStateChanging() bool {
	return IsStateChangingMethod(d.Method)
}

// IsStateChangingMethod reports whether method is POST, PUT, DELETE or PATCH.
func IsStateChangingMethod(method string) bool {
	switch strings.ToUpper(method) {
	case "POST", "PUT", "DELETE", "PATCH":
		return true
	default:
		return false
	}
}
