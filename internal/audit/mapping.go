package audit

import "strings"

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// Route overrides: 2FA confirmation is recorded as a change to the user, not an auth call.
var routeOverrides = map[string]ActionResource{
	"POST /api/auth/verify-2fa-setup": {Action: ActionTwoFactorEnabled, Resource: "user"},
	"POST /api/auth/enable-2fa":       {Action: "2fa_requested", Resource: "user"},
}

// ParseRoute returns action and resource for an HTTP method and route pattern (e.g. GET /api/user/profile).
// Resource is the first path segment after /api. For POST the action is the last static segment
// in snake case (verify-otp -> verify_otp); for other methods it is the method verb, suffixed with
// the last static segment when that differs from the resource (GET /api/user/profile -> get_profile).
func ParseRoute(method, pattern string) ActionResource {
	method = strings.ToUpper(method)
	if ar, ok := routeOverrides[method+" "+pattern]; ok {
		return ar
	}
	path := strings.TrimPrefix(strings.Trim(pattern, "/"), "api/")
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s == "" || strings.HasPrefix(s, "{") {
			continue
		}
		segs = append(segs, s)
	}
	if len(segs) == 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	resource := snake(segs[0])
	last := snake(segs[len(segs)-1])
	if method == "POST" {
		if len(segs) == 1 {
			return ActionResource{Action: "create", Resource: resource}
		}
		return ActionResource{Action: last, Resource: resource}
	}
	verb := methodToAction(method)
	if last == resource {
		return ActionResource{Action: verb, Resource: resource}
	}
	return ActionResource{Action: verb + "_" + last, Resource: resource}
}

func snake(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "-", "_"))
}

func methodToAction(method string) string {
	switch method {
	case "GET", "HEAD":
		return "get"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
