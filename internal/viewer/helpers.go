package viewer

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rendis/archflow/pkg/schema"
)

// templateFuncs are the helpers available to the page templates.
var templateFuncs = map[string]any{
	"json":      prettyJSON,
	"since":     since,
	"toneClass": toneClass,
	"tailPath":  tailPath,
}

func prettyJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// since formats how long ago a diagram was stored, at the coarsest unit.
func since(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t).Round(time.Second)
	units := []struct {
		size   time.Duration
		suffix string
	}{
		{24 * time.Hour, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
	}
	for _, u := range units {
		if d >= u.size {
			return strconv.Itoa(int(d/u.size)) + u.suffix + " ago"
		}
	}
	if d < 5*time.Second {
		return "just now"
	}
	return strconv.Itoa(int(d/time.Second)) + "s ago"
}

// toneClass maps a node tone to its legend badge class in viewer.css.
func toneClass(t schema.Tone) string {
	switch t {
	case schema.ToneAccent:
		return "badge-accent"
	case schema.ToneWarn:
		return "badge-warning"
	}
	return ""
}

// tailPath keeps the last max runes of a source path, where the file name is.
func tailPath(p string, max int) string {
	r := []rune(p)
	if max <= 0 || len(r) <= max {
		return p
	}
	return "…" + string(r[len(r)-max:])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorBody is the JSON shape of a failed API call.
type errorBody struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Slug    string         `json:"slug,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// writeErr answers with the status for err's code. Errors without a code are
// internal.
func writeErr(w http.ResponseWriter, err error) {
	var aErr *schema.ArchflowError
	if !errors.As(err, &aErr) {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, statusFor(aErr.Code), errorBody{
		Error:   aErr.Message,
		Code:    aErr.Code,
		Slug:    aErr.Slug,
		Details: aErr.Details,
	})
}

var codeStatus = map[string]int{
	schema.ErrCodeNotFound:          http.StatusNotFound,
	schema.ErrCodeValidation:        http.StatusBadRequest,
	schema.ErrCodeExpression:        http.StatusBadRequest,
	schema.ErrCodeInvalidTransition: http.StatusBadRequest,
	schema.ErrCodeExportUnavailable: http.StatusNotImplemented,
	schema.ErrCodeSessionClosed:     http.StatusGone,
	schema.ErrCodeNothingRendered:   http.StatusConflict,
}

func statusFor(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// queryNum reads a numeric query parameter, falling back to def when it is
// absent or malformed.
func queryNum[T ~int | ~int64](r *http.Request, key string, def T) T {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return T(n)
}
