// Package openapi embeds the OpenAPI description of the waitlist HTTP API.
package openapi

import _ "embed"

// WaitlistSpec is the OpenAPI document served at /openapi.yaml.
//
//go:embed waitlist-api.yaml
var WaitlistSpec []byte

// Spec returns a copy of the embedded document.
func Spec() []byte {
	return append([]byte(nil), WaitlistSpec...)
}
