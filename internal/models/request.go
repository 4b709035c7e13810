// Package models - API request types.
package models

import "strings"

// VerifyRequest is the JSON body of POST /api/captcha/verify. Captcha is nil
// when the client omitted the field or sent null.
type VerifyRequest struct {
	Captcha *string `json:"captcha"`
}

// IsTestMode reports whether a test-mode header value enables test mode.
// Only "true" in any letter case does; everything else, including an absent
// header, means normal mode.
func IsTestMode(headerValue string) bool {
	return strings.EqualFold(headerValue, "true")
}
