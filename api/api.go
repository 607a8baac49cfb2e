// Package api carries the OpenAPI document describing the analyzer's HTTP
// surface. The document is embedded so the binary can serve it without any
// files on disk.
package api

import _ "embed"

//go:embed openapi.yaml
var document []byte

// Document returns the raw OpenAPI YAML.
func Document() []byte {
	out := make([]byte, len(document))
	copy(out, document)
	return out
}
