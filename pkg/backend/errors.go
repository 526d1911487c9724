package backend

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// APIError is returned when the backend answers with a non-2xx status.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
	Location   []string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Method, e.URL, msg)
}

// errorBody covers the two error shapes the service emits: a validation
// style {"detail": [{"msg", "loc"}]} list and a flat {"message", "location"}.
type errorBody struct {
	Detail   json.RawMessage `json:"detail"`
	Message  string          `json:"message"`
	Location any             `json:"location"`
}

type errorDetail struct {
	Msg string `json:"msg"`
	Loc []any  `json:"loc"`
}

// parseErrorBody extracts message and location from an error response. An
// unrecognised body yields empty values.
func parseErrorBody(body []byte) (string, []string) {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return strings.TrimSpace(string(body)), nil
	}
	if len(eb.Detail) > 0 {
		var details []errorDetail
		if err := json.Unmarshal(eb.Detail, &details); err == nil && len(details) > 0 {
			return details[0].Msg, stringify(details[0].Loc)
		}
		var text string
		if err := json.Unmarshal(eb.Detail, &text); err == nil {
			return text, nil
		}
	}
	switch loc := eb.Location.(type) {
	case string:
		return eb.Message, []string{loc}
	case []any:
		return eb.Message, stringify(loc)
	}
	return eb.Message, nil
}

func stringify(vals []any) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, fmt.Sprint(v))
	}
	return out
}

// Diagnostic renders err as "API error: <msg> [<loc>, ...]" for logging.
// Errors that are not APIErrors use their own message and no location.
func Diagnostic(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("API error: %s [%s]", apiErr.Message, strings.Join(apiErr.Location, ", "))
	}
	return fmt.Sprintf("API error: %s []", err.Error())
}
