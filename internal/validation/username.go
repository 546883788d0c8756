package validation

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	HandleMinLength = 3
	HandleMaxLength = 40
	DefaultHandle   = "user"
)

var (
	disallowedRun = regexp.MustCompile(`[^a-z0-9._-]+`)
	separatorRun  = regexp.MustCompile(`[._-]{2,}`)
	handlePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9._-]*[a-z0-9])?$`)
)

const separators = "-_."

// reservedHandles are path segments owned by the application. A username or
// page slug may not take any of them.
var reservedHandles = map[string]struct{}{
	"about":     {},
	"account":   {},
	"admin":     {},
	"api":       {},
	"app":       {},
	"assets":    {},
	"auth":      {},
	"avatar":    {},
	"blog":      {},
	"dashboard": {},
	"docs":      {},
	"edit":      {},
	"health":    {},
	"help":      {},
	"legal":     {},
	"login":     {},
	"logout":    {},
	"metrics":   {},
	"new":       {},
	"null":      {},
	"page":      {},
	"pages":     {},
	"pricing":   {},
	"privacy":   {},
	"public":    {},
	"publish":   {},
	"register":  {},
	"root":      {},
	"settings":  {},
	"signup":    {},
	"static":    {},
	"support":   {},
	"swagger":   {},
	"terms":     {},
	"themes":    {},
	"undefined": {},
	"user":      {},
	"username":  {},
	"users":     {},
	"waitlist":  {},
	"ws":        {},
	"www":       {},
}

// NormalizeHandle lowercases raw, replaces disallowed runs with "-", collapses
// repeated separators and trims separators from both ends. It never returns
// an empty string.
func NormalizeHandle(raw string) string {
	s := strings.ToLower(raw)
	s = disallowedRun.ReplaceAllString(s, "-")
	s = separatorRun.ReplaceAllString(s, "-")
	s = strings.Trim(s, separators)
	if s == "" {
		return DefaultHandle
	}
	return s
}

// HandleFromEmail normalizes the local part of email.
func HandleFromEmail(email string) string {
	local := email
	if at := strings.LastIndex(email, "@"); at >= 0 {
		local = email[:at]
	}
	return NormalizeHandle(local)
}

// IsReservedHandle reports whether s names a reserved path, ignoring case and
// surrounding whitespace.
func IsReservedHandle(s string) bool {
	_, ok := reservedHandles[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// ValidateHandle checks an already normalized handle for length, format and
// reserved names. Uniqueness is checked by the caller.
func ValidateHandle(handle string) error {
	if len(handle) < HandleMinLength {
		return fmt.Errorf("must be at least %d characters", HandleMinLength)
	}
	if len(handle) > HandleMaxLength {
		return fmt.Errorf("must not exceed %d characters", HandleMaxLength)
	}
	if !handlePattern.MatchString(handle) {
		return fmt.Errorf("may only contain lowercase letters, numbers, '.', '_' and '-' and must start and end with a letter or number")
	}
	if IsReservedHandle(handle) {
		return fmt.Errorf("%q is reserved", handle)
	}
	return nil
}

// FitHandle pads a normalized base to the minimum length and truncates it so
// that base+suffix fits the maximum length.
func FitHandle(base, suffix string) string {
	for len(base) < HandleMinLength {
		base += "0"
	}
	limit := HandleMaxLength - len(suffix)
	if len(base) > limit {
		base = strings.TrimRight(base[:limit], separators)
		for len(base) < HandleMinLength {
			base += "0"
		}
	}
	return base + suffix
}
