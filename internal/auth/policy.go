// Package auth decides whether an inbound gateway request may proceed, based
// on the route, the HTTP method and the caller's role claim.
package auth

import (
	"net/http"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleOperator  Role = "operator"
	RoleAgent     Role = "agent"
	RolePassenger Role = "passenger"
)

// Claims is what a verified bearer token says about the caller.
// A nil *Claims means the caller is anonymous.
type Claims struct {
	Subject   string
	Role      Role
	ExpiresAt time.Time
}

type Decision int

const (
	Allow Decision = iota
	Unauthenticated
	Forbidden
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// RoutePermission grants roles on every path under Prefix. Exactly one of
// AllMethods or Methods is set; a method missing from Methods falls back to
// the GET entry.
type RoutePermission struct {
	Prefix     string
	AllMethods []Role
	Methods    map[string][]Role
}

func (p RoutePermission) rolesFor(method string) []Role {
	if p.Methods == nil {
		return p.AllMethods
	}
	if roles, ok := p.Methods[method]; ok {
		return roles
	}
	return p.Methods[http.MethodGet]
}

var everyone = []Role{RoleAdmin, RoleOperator, RoleAgent, RolePassenger}

// DefaultPublicRoutes never require a token. "/" only matches the root itself.
var DefaultPublicRoutes = []string{
	"/",
	"/health",
	"/docs",
	"/api/v1/auth/login",
	"/api/v1/auth/register",
}

// DefaultSearchablePrefixes can be read anonymously with GET.
var DefaultSearchablePrefixes = []string{
	"/api/v1/flights",
	"/api/v1/airports",
	"/api/v1/aircraft",
	"/api/v1/crew",
}

func DefaultPermissions() []RoutePermission {
	return []RoutePermission{
		{Prefix: "/api/v1/users", AllMethods: []Role{RoleAdmin}},
		{Prefix: "/api/v1/flights", Methods: map[string][]Role{
			http.MethodGet:    everyone,
			http.MethodPost:   {RoleAdmin, RoleOperator},
			http.MethodPut:    {RoleAdmin, RoleOperator},
			http.MethodPatch:  {RoleAdmin, RoleOperator},
			http.MethodDelete: {RoleAdmin},
		}},
		{Prefix: "/api/v1/airports", Methods: map[string][]Role{
			http.MethodGet:    everyone,
			http.MethodPost:   {RoleAdmin, RoleOperator},
			http.MethodPut:    {RoleAdmin, RoleOperator},
			http.MethodPatch:  {RoleAdmin, RoleOperator},
			http.MethodDelete: {RoleAdmin},
		}},
		{Prefix: "/api/v1/aircraft", Methods: map[string][]Role{
			http.MethodGet:    everyone,
			http.MethodPost:   {RoleAdmin, RoleOperator},
			http.MethodPut:    {RoleAdmin, RoleOperator},
			http.MethodPatch:  {RoleAdmin, RoleOperator},
			http.MethodDelete: {RoleAdmin, RoleOperator},
		}},
		{Prefix: "/api/v1/crew", Methods: map[string][]Role{
			http.MethodGet:    everyone,
			http.MethodPost:   {RoleAdmin, RoleOperator},
			http.MethodPut:    {RoleAdmin, RoleOperator},
			http.MethodPatch:  {RoleAdmin, RoleOperator},
			http.MethodDelete: {RoleAdmin},
		}},
		{Prefix: "/api/v1/passengers", Methods: map[string][]Role{
			http.MethodGet:    {RoleAdmin},
			http.MethodPost:   {RoleAdmin, RoleAgent},
			http.MethodPut:    {RoleAdmin, RoleAgent},
			http.MethodPatch:  {RoleAdmin, RoleAgent},
			http.MethodDelete: {RoleAdmin},
		}},
		{Prefix: "/api/v1/reservations", Methods: map[string][]Role{
			http.MethodGet:    {RoleAdmin},
			http.MethodPost:   {RoleAdmin, RoleAgent},
			http.MethodPut:    {RoleAdmin, RoleAgent},
			http.MethodPatch:  {RoleAdmin, RoleAgent},
			http.MethodDelete: {RoleAdmin, RoleAgent},
		}},
	}
}

type Policy struct {
	publicRoutes []string
	searchable   []string
	permissions  []RoutePermission
	defaultDeny  bool
}

type PolicyOption func(*Policy)

// WithDefaultDeny makes routes missing from the permission table Forbidden
// for non-admin callers instead of allowed.
func WithDefaultDeny(deny bool) PolicyOption {
	return func(p *Policy) { p.defaultDeny = deny }
}

func WithPermissions(perms []RoutePermission) PolicyOption {
	return func(p *Policy) { p.permissions = perms }
}

func WithPublicRoutes(routes []string) PolicyOption {
	return func(p *Policy) { p.publicRoutes = routes }
}

func NewPolicy(opts ...PolicyOption) *Policy {
	p := &Policy{
		publicRoutes: DefaultPublicRoutes,
		searchable:   DefaultSearchablePrefixes,
		permissions:  DefaultPermissions(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Policy) Authorize(path, method string, claims *Claims) Decision {
	method = strings.ToUpper(method)

	for _, route := range p.publicRoutes {
		if matchPrefix(path, route) {
			return Allow
		}
	}

	if method == http.MethodGet {
		for _, prefix := range p.searchable {
			if matchPrefix(path, prefix) {
				return Allow
			}
		}
	}

	if claims == nil {
		return Unauthenticated
	}
	if claims.Role == RoleAdmin {
		return Allow
	}

	perm, ok := p.lookup(path)
	if !ok {
		if p.defaultDeny {
			return Forbidden
		}
		return Allow
	}

	for _, role := range perm.rolesFor(method) {
		if role == claims.Role {
			return Allow
		}
	}
	return Forbidden
}

func (p *Policy) lookup(path string) (RoutePermission, bool) {
	for _, perm := range p.permissions {
		if matchPrefix(path, perm.Prefix) {
			return perm, true
		}
	}
	return RoutePermission{}, false
}

// matchPrefix matches whole path segments, so /api/v1/crew does not match
// /api/v1/crewmates. The root route only matches itself.
func matchPrefix(path, prefix string) bool {
	if prefix == "/" {
		return path == "/"
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
