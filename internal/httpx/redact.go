package httpx

import (
	"strings"

	json "github.com/json-iterator/go"
)

// sensitiveFields are stripped from connector event logs. Matching is done on
// the lowercased JSON key.
var sensitiveFields = map[string]struct{}{
	"card_number": {}, "number": {}, "card_cvc": {}, "cvc": {}, "cvv": {},
	"card_exp_month": {}, "card_exp_year": {}, "api_key": {}, "api_secret": {},
	"authorization": {}, "token": {}, "password": {},
}

var sensitiveHeaders = map[string]struct{}{
	"authorization": {}, "x-api-key": {}, "x-signature": {},
}

// RedactBody replaces sensitive values in a JSON body with "***". Bodies that
// are not JSON objects are replaced wholesale, which loses detail but can
// never leak a PAN.
func RedactBody(body []byte) []byte {
	if len(body) == 0 {
		return body
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return []byte(`"*** non-json body redacted ***"`)
	}
	redactMap(doc)
	out, err := json.Marshal(doc)
	if err != nil {
		return []byte(`"*** redaction failed ***"`)
	}
	return out
}

func redactMap(doc map[string]any) {
	for key, value := range doc {
		if _, sensitive := sensitiveFields[strings.ToLower(key)]; sensitive {
			doc[key] = "***"
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			redactMap(nested)
		}
	}
}

// RedactHeaders copies headers with credential values masked.
func RedactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		if _, sensitive := sensitiveHeaders[strings.ToLower(name)]; sensitive {
			out[name] = "***"
			continue
		}
		out[name] = value
	}
	return out
}
