// Package api carries the embedded OpenAPI document describing the HTTP
// surface. The server validates it at startup and serves it verbatim.
package api

import _ "embed"

//go:embed openapi.yaml
var Spec []byte
