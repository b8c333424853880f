// Package openapi holds the service's OpenAPI document.
package openapi

import _ "embed"

//go:embed openapi.yaml
var Spec []byte
