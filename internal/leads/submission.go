package leads

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfman30/leadcapture/internal/validation"
)

// Keys the form may send that are never stored as details.
const (
	KeyUserOTP = "user_otp"
	KeyWPOTP   = "wp_otp"
	KeyLeadID  = "lead_id"
)

// ArraySeparator joins the values of array-typed form inputs.
const ArraySeparator = "| "

var fixedKeys = map[string]struct{}{
	"form_type":    {},
	"source_url":   {},
	"ip":           {},
	"name":         {},
	"phone_number": {},
	"email":        {},
}

// Submission is a decoded lead form: the validated fixed schema, the
// form-specific extras and the one-time codes used for channel verification.
type Submission struct {
	Fields  Fields
	Extra   ExtraFields
	UserOTP string
	WPOTP   string
}

// ParseSubmission decodes a raw JSON form body. Extras are every submitted key
// outside the fixed schema and the reserved keys, in submission order.
// A *ValidationError is returned when the fixed schema is invalid.
func ParseSubmission(body []byte) (Submission, error) {
	var sub Submission
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return sub, ErrInvalidBody
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return sub, ErrInvalidBody
	}

	verr := &ValidationError{}
	fixed := map[string]string{}
	seen := map[string]int{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return sub, fmt.Errorf("%w: %v", ErrInvalidBody, err)
		}
		key, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return sub, fmt.Errorf("%w: %v", ErrInvalidBody, err)
		}

		if _, ok := fixedKeys[key]; ok {
			s, ok := rawString(raw)
			if !ok {
				verr.Add(key, fmt.Sprintf("The %s field must be a string.", strings.ReplaceAll(key, "_", " ")))
				continue
			}
			fixed[key] = strings.TrimSpace(s)
			continue
		}

		switch key {
		case KeyUserOTP:
			sub.UserOTP = strings.TrimSpace(flatten(raw))
		case KeyWPOTP:
			sub.WPOTP = strings.TrimSpace(flatten(raw))
		case KeyLeadID:
		default:
			value := flatten(raw)
			if i, ok := seen[key]; ok {
				sub.Extra[i].Value = value
				continue
			}
			seen[key] = len(sub.Extra)
			sub.Extra = append(sub.Extra, Field{Key: key, Value: value})
		}
	}
	if _, err := dec.Token(); err != nil {
		return sub, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}

	sub.Fields = Fields{
		FormType:    fixed["form_type"],
		SourceURL:   fixed["source_url"],
		IP:          fixed["ip"],
		Name:        fixed["name"],
		PhoneNumber: fixed["phone_number"],
		Email:       fixed["email"],
	}
	if err := validation.Struct(sub.Fields, verr); err != nil {
		return sub, err
	}
	if err := verr.OrNil(); err != nil {
		return sub, err
	}
	return sub, nil
}

// rawString accepts JSON strings and null (treated as missing).
func rawString(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return "", true
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return "", false
	}
	return s, true
}

// flatten renders a JSON value as a detail string.
func flatten(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
		return string(trimmed)
	case 'n':
		return ""
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return string(trimmed)
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			parts = append(parts, flatten(item))
		}
		return strings.Join(parts, ArraySeparator)
	case '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return string(trimmed)
		}
		return buf.String()
	default:
		return string(trimmed)
	}
}
