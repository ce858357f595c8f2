// Package pixiv is the HTTP session adapter for pixiv: it carries the session
// cookie, user agent and Referer on every request, routes through an optional
// proxy and classifies failures into pkg/errors types.
//
// Three ajax endpoints are used:
//
//	/ajax/user/{id}/profile/all   artwork IDs of an author
//	/ajax/illust/{id}             metadata of one artwork
//	/ajax/illust/{id}/pages       per-page image URLs
//
// Payloads are read with gjson rather than decoded into structs because
// pixiv changes shapes between endpoints (an empty map arrives as []).
package pixiv
