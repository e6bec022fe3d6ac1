// Package protocol maps the endpoint addressing scheme onto transport
// requests.
//
// # Addressing
//
// Every resource of a functional endpoint has a path:
//
//	/{endpoint}                     the endpoint itself
//	/{endpoint}/{section}           a whole section (s, c or m)
//	/{endpoint}/{section}/{trait}/{prop}   one property
//	/{endpoint}/f/{trait}?{method}  a method invocation
//	/g/{group}/...                  the same shapes on a group
//
// Query parameters modify writes: inc (increment by payload), tog
// (toggle, no payload), ins / rem (array insert and remove), and
// d=<seconds> (smooth transition duration). The origin parameter tags
// the write for listener echo suppression.
//
// # Serving
//
// Server implements transport.Handler: it parses the addressed path,
// resolves the endpoint through a Host lookup, performs the operation
// and encodes the result with the request's negotiated format.
// Observations become endpoint listeners whose notifications are
// sequence-numbered for stale-drop on the receiving side.
package protocol
