package auth

import (
	"net/http"
	"regexp"
	"strings"
)

// Actions inferred for registered endpoints.
const (
	ActionList   = "list"
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// URL patterns used to infer the resource an endpoint addresses.
var (
	// /api, /api/v1, /v2 ... are stripped before classification.
	prefixPattern = regexp.MustCompile(`^/(?:api/)?(?:v\d+/)?`)
	// {id}, :id, 42 and UUIDs are path parameters.
	paramPattern = regexp.MustCompile(`^(?:\{[^/]+\}|:[^/]+|\d+|[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})$`)
)

// actionTable maps (method, addresses a single item) to an action.
var actionTable = map[string][2]string{
	//                      collection    item
	http.MethodGet:    {ActionList, ActionRead},
	http.MethodPost:   {ActionCreate, ActionCreate},
	http.MethodPut:    {ActionUpdate, ActionUpdate},
	http.MethodPatch:  {ActionUpdate, ActionUpdate},
	http.MethodDelete: {ActionDelete, ActionDelete},
}

// InferResourceAction derives a resource name and action from an endpoint's method and path.
//
//	GET    /api/v1/users        -> users, list
//	GET    /api/v1/users/{id}   -> users, read
//	POST   /api/v1/users        -> users, create
//	PATCH  /api/v1/users/{id}   -> users, update
//	DELETE /api/v1/users/{id}   -> users, delete
//	GET    /api/orders/{id}/items -> items, list
//
// ok is false when the method is unknown or the path names no resource.
func InferResourceAction(method, path string) (resource, action string, ok bool) {
	actions, known := actionTable[strings.ToUpper(method)]
	if !known {
		return "", "", false
	}

	rest := prefixPattern.ReplaceAllString(path, "")
	segments := strings.FieldsFunc(rest, func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return "", "", false
	}

	item := paramPattern.MatchString(segments[len(segments)-1])
	for i := len(segments) - 1; i >= 0; i-- {
		if !paramPattern.MatchString(segments[i]) {
			resource = strings.ToLower(segments[i])
			break
		}
	}
	if resource == "" {
		return "", "", false
	}

	if item {
		return resource, actions[1], true
	}
	return resource, actions[0], true
}
