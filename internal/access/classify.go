// Package access はルート分類とアクセス可否の判定を提供する。
package access

import "strings"

// RouteClass はパスのアクセス区分。
type RouteClass string

const (
	ClassPublic    RouteClass = "public"
	ClassAuthPage  RouteClass = "auth-page"
	ClassProtected RouteClass = "protected"
	ClassAdmin     RouteClass = "admin"
)

// RouteRule はルート分類表の1行。
// Exactがtrueの場合は完全一致、falseの場合は前方一致で判定する。
type RouteRule struct {
	Pattern string
	Exact   bool
	Class   RouteClass
}

// Matches はパスがルールに一致するかを返す。
func (r RouteRule) Matches(path string) bool {
	if r.Exact {
		return path == r.Pattern
	}
	return strings.HasPrefix(path, r.Pattern)
}

// RouteTable は上から順に評価するルート分類表。最初に一致した行が採用される。
// publicの行を先頭に置くため、auth-pageやadminと重なった場合はpublicが優先される。
// どの行にも一致しないパスはprotectedになる。
var RouteTable = []RouteRule{
	{Pattern: "/", Exact: true, Class: ClassPublic},
	{Pattern: "/api/webhooks", Class: ClassPublic},
	{Pattern: "/auth/", Class: ClassPublic},
	{Pattern: "/api/cities", Class: ClassPublic},
	{Pattern: "/api/subscription", Class: ClassPublic},
	{Pattern: "/privacy", Class: ClassPublic},
	{Pattern: "/terms", Class: ClassPublic},
	{Pattern: "/pricing", Class: ClassPublic},
	{Pattern: "/subscription", Class: ClassPublic},
	{Pattern: "/health", Class: ClassPublic},
	{Pattern: "/metrics", Class: ClassPublic},
	{Pattern: "/static/", Class: ClassPublic},
	{Pattern: "/api/csrf-token", Exact: true, Class: ClassPublic},

	{Pattern: "/login", Class: ClassAuthPage},
	{Pattern: "/register", Class: ClassAuthPage},

	{Pattern: "/admin", Class: ClassAdmin},
}

// Classify はRouteTableでパスを分類する。
func Classify(path string) RouteClass {
	return ClassifyWith(RouteTable, path)
}

// ClassifyWith は任意の分類表でパスを分類する。
func ClassifyWith(table []RouteRule, path string) RouteClass {
	for _, rule := range table {
		if rule.Matches(path) {
			return rule.Class
		}
	}
	return ClassProtected
}
