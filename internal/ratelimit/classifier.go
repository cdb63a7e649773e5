package ratelimit

import (
	"strings"

	"gatekeeper/internal/models"
)

// PrefixRule maps a path prefix to a rule class.
type PrefixRule struct {
	Prefix string
	Class  RuleClass
}

// DefaultPrefixes is evaluated top to bottom and the first match wins.
// Session and auth prefixes live under the API namespace, so they must
// precede the generic /api/ entry.
var DefaultPrefixes = []PrefixRule{
	{Prefix: "/api/auth/session", Class: ClassSession},
	{Prefix: "/api/auth/_log", Class: ClassSession},
	{Prefix: "/auth/session", Class: ClassSession},
	{Prefix: "/auth/_log", Class: ClassSession},
	{Prefix: "/api/auth/", Class: ClassAuth},
	{Prefix: "/auth/", Class: ClassAuth},
	{Prefix: "/api/resumes", Class: ClassResume},
	{Prefix: "/api/ai", Class: ClassAI},
	{Prefix: "/api/templates", Class: ClassTemplate},
	{Prefix: "/api/", Class: ClassAPI},
}

// Classification ties a request to a rule class and counter bucket.
type Classification struct {
	Class RuleClass
	Key   string
}

// Limited reports whether the request is subject to rate limiting.
func (c Classification) Limited() bool {
	return c.Class != ClassNone
}

// Classifier derives rate-limit keys from requests.
type Classifier struct {
	prefixes []PrefixRule
	rules    map[RuleClass]Rule
}

// NewClassifier creates a classifier over the given prefix table and rules.
// Nil arguments fall back to DefaultPrefixes and DefaultRules.
func NewClassifier(prefixes []PrefixRule, rules map[RuleClass]Rule) *Classifier {
	if prefixes == nil {
		prefixes = DefaultPrefixes
	}
	if rules == nil {
		rules = DefaultRules
	}
	return &Classifier{prefixes: prefixes, rules: rules}
}

// Classify returns the rule class and key for the request. Keys have the
// form class:identity[:path] where identity is the caller IP or "anonymous";
// the class prefix keeps keys of different classes disjoint.
func (c *Classifier) Classify(req models.RequestDescriptor) Classification {
	path := req.Path
	if path == "" {
		path = "/"
	}

	for _, p := range c.prefixes {
		if !strings.HasPrefix(path, p.Prefix) {
			continue
		}
		key := string(p.Class) + ":" + req.Identity()
		if c.rules[p.Class].PathSensitive {
			key += ":" + path
		}
		return Classification{Class: p.Class, Key: key}
	}

	return Classification{Class: ClassNone}
}

var defaultClassifier = NewClassifier(nil, nil)

// Classify classifies a request with the default prefix table and rules.
func Classify(method, path, callerIP string) Classification {
	return defaultClassifier.Classify(models.RequestDescriptor{
		Method:   method,
		Path:     path,
		CallerIP: callerIP,
	})
}
