// Package logsafe masks secrets out of error messages before they reach logs.
package logsafe

import "regexp"

var (
	// anthropicKeyPattern must run before openaiKeyPattern: it's the more
	// specific of the two sk- prefixes.
	anthropicKeyPattern = regexp.MustCompile(`sk-ant-[a-zA-Z0-9-_]+`)
	openaiKeyPattern    = regexp.MustCompile(`sk-[a-zA-Z0-9]{10,}`)
	dbPasswordPattern   = regexp.MustCompile(`://([^:]+):([^@]+)@`)
)

// SanitizeError returns err's message with API keys and DSN passwords masked.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	msg = anthropicKeyPattern.ReplaceAllString(msg, "sk-ant-****")
	msg = openaiKeyPattern.ReplaceAllString(msg, "sk-****")
	msg = dbPasswordPattern.ReplaceAllString(msg, "://$1:****@")

	return msg
}
