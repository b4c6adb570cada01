package httpapi

const (
	// Health
	RouteHealth = "/health"

	// Challenge endpoints
	RouteIssue = "/api/v5/captcha"
	RouteCDN   = "/api/v5/cdn/{cdn_id}"
	RouteCheck = "/api/v5/check/{solution_id}"

	// Pages
	RouteHome     = "/"
	RouteExamples = "/examples"
)
