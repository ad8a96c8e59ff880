package metrics

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

// InstrumentClient records request count and latency for every call the
// client makes, by method, route and status code.
func InstrumentClient(c *resty.Client) *resty.Client {
	c.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		method := resp.Request.Method
		route := RouteLabel(resp.Request.URL)
		status := strconv.Itoa(resp.StatusCode())

		BackendRequestsTotal.WithLabelValues(method, route, status).Inc()
		BackendRequestDuration.WithLabelValues(method, route).Observe(resp.Time().Seconds())
		return nil
	})
	c.OnError(func(req *resty.Request, _ error) {
		BackendRequestsTotal.WithLabelValues(req.Method, RouteLabel(req.URL), "error").Inc()
	})
	return c
}

// RouteLabel maps a request URL to a bounded route label so set names and
// search terms do not explode cardinality.
func RouteLabel(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(segments) >= 2 && segments[0] == "cards":
		return "/cards/" + segments[1]
	case len(segments) >= 2 && segments[0] == "card-sets" && segments[1] == "from-cache":
		return "/card-sets/from-cache"
	case len(segments) >= 2 && segments[0] == "card-sets" && segments[1] == "search":
		return "/card-sets/search/:term"
	case len(segments) >= 3 && segments[0] == "card-sets" && segments[2] == "cards":
		return "/card-sets/:set/cards"
	case len(segments) == 1 && segments[0] != "":
		return "/" + segments[0]
	}
	return "unknown"
}
