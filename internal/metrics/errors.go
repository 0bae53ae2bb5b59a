package metrics

import "strconv"

const (
	HTTPErrorsTotal = "http_errors_total"
	PanicsTotal     = "http_panics_total"
)

// RecordHTTPError counts an error response. route should be the router
// pattern (for example "/v1/places/search") rather than the raw path so
// label cardinality stays bounded; an empty route is reported as
// "unmatched".
func RecordHTTPError(route, errorCode string, httpStatus int) {
	if route == "" {
		route = "unmatched"
	}
	counter(HTTPErrorsTotal, map[string]string{
		"route":       route,
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

func RecordPanic(route string) {
	if route == "" {
		route = "unmatched"
	}
	counter(PanicsTotal, map[string]string{"route": route})
}
