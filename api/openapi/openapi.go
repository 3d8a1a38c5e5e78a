// Package openapi embeds the HTTP API description.
package openapi

import _ "embed"

// Spec is the OpenAPI document of the HTTP API.
//
//go:embed openapi.yaml
var Spec []byte
