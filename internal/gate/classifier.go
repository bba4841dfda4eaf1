package gate

import (
	"path"
	"regexp"
	"slices"
	"strings"
)

// Kind says whether a path needs a session.
type Kind int

const (
	Protected Kind = iota
	Public
)

func (k Kind) String() string {
	if k == Public {
		return "public"
	}
	return "protected"
}

// Action is the path normalization a classification asks for.
type Action int

const (
	ActionNone Action = iota
	ActionRedirect
	ActionRewrite
)

// Classification is the result of classifying one path.
type Classification struct {
	Kind   Kind
	Action Action
	// Target is the redirect or rewrite destination.
	Target string
}

type rewriteRule struct {
	pattern *regexp.Regexp
	prefix  string
}

// Classifier maps request paths to a Classification. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	private   bool
	redirects map[string]string
	rewrites  []rewriteRule
}

// NewClassifier builds the classifier. With private set, every path outside
// the public allow-list is protected; otherwise only the admin area, the
// account endpoints and image paths are.
func NewClassifier(private bool) *Classifier {
	return &Classifier{
		private: private,
		redirects: map[string]string{
			PathAdmin: PathAdminPhotos,
			PathOG:    PathOGSample,
		},
		rewrites: []rewriteRule{
			{pattern: regexp.MustCompile(`^/photos/(.+)$`), prefix: PrefixPhoto},
			{pattern: regexp.MustCompile(`^/t/(.+)$`), prefix: PrefixTag},
		},
	}
}

// Classify classifies path. Legacy redirects and rewrites are matched first
// and their paths are never public through the allow-list.
func (c *Classifier) Classify(p string) Classification {
	if target, ok := c.redirects[p]; ok {
		return Classification{Kind: c.defaultKind(p), Action: ActionRedirect, Target: target}
	}
	for _, rule := range c.rewrites {
		if m := rule.pattern.FindStringSubmatch(p); m != nil {
			return Classification{Kind: c.defaultKind(p), Action: ActionRewrite, Target: rule.prefix + "/" + m[1]}
		}
	}
	if IsPublicPath(p) && !IsImagePath(p) {
		return Classification{Kind: Public}
	}
	return Classification{Kind: c.defaultKind(p)}
}

// defaultKind classifies a path that is not on the allow-list.
func (c *Classifier) defaultKind(p string) Kind {
	if c.private || IsImagePath(p) || hasAnyPrefix(p, protectedPrefixes) {
		return Protected
	}
	return Public
}

// IsPublicPath reports whether p is on the public allow-list.
func IsPublicPath(p string) bool {
	return slices.Contains(publicPaths, p) || hasAnyPrefix(p, publicPrefixes)
}

// IsImagePath reports whether p serves image bytes.
func IsImagePath(p string) bool {
	return hasAnyPrefix(p, imagePrefixes)
}

// IsStaticPath reports whether p is a static asset that skips the gate.
// Image paths are never static.
func IsStaticPath(p string) bool {
	if IsImagePath(p) {
		return false
	}
	if slices.Contains(staticPaths, p) || hasAnyPrefix(p, staticPrefixes) {
		return true
	}
	return slices.Contains(staticExts, strings.ToLower(path.Ext(p)))
}

func hasAnyPrefix(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
