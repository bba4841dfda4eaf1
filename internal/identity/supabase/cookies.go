package supabase

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// maxChunkSize matches the chunk size of Supabase's SSR cookie storage.
	maxChunkSize = 3180

	base64Prefix = "base64-"

	// cookieMaxAge is 400 days, the longest lifetime browsers honor.
	cookieMaxAge = 400 * 24 * 60 * 60
)

// StorageKey derives the session cookie name from the project URL:
// https://abcdefgh.supabase.co -> sb-abcdefgh-auth-token.
func StorageKey(projectURL string) (string, error) {
	u, err := url.Parse(projectURL)
	if err != nil {
		return "", fmt.Errorf("parse supabase url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("supabase url %q has no host", projectURL)
	}
	ref, _, _ := strings.Cut(host, ".")
	return "sb-" + ref + "-auth-token", nil
}

// cookieJar reads and writes the (possibly chunked) session cookie.
type cookieJar struct {
	key    string
	secure bool
}

// read reassembles the session cookie value. A whole cookie wins over chunks.
func (j cookieJar) read(cookies []*http.Cookie) (string, bool) {
	chunks := make(map[int]string)
	for _, c := range cookies {
		if c.Name == j.key {
			return c.Value, c.Value != ""
		}
		if idx, ok := j.chunkIndex(c.Name); ok {
			chunks[idx] = c.Value
		}
	}
	if len(chunks) == 0 {
		return "", false
	}

	var b strings.Builder
	for i := 0; ; i++ {
		part, ok := chunks[i]
		if !ok {
			break
		}
		b.WriteString(part)
	}
	return b.String(), b.Len() > 0
}

// chunkIndex parses "<key>.<n>" cookie names.
func (j cookieJar) chunkIndex(name string) (int, bool) {
	suffix, ok := strings.CutPrefix(name, j.key+".")
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(suffix)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// write returns the cookies that store value, plus clearing cookies for any
// session cookie in existing that the new layout no longer uses.
func (j cookieJar) write(value string, existing []*http.Cookie) []*http.Cookie {
	var out []*http.Cookie
	written := make(map[string]struct{})

	if len(value) <= maxChunkSize {
		out = append(out, j.cookie(j.key, value))
		written[j.key] = struct{}{}
	} else {
		for i := 0; len(value) > 0; i++ {
			n := min(maxChunkSize, len(value))
			name := j.key + "." + strconv.Itoa(i)
			out = append(out, j.cookie(name, value[:n]))
			written[name] = struct{}{}
			value = value[n:]
		}
	}

	for _, c := range j.owned(existing) {
		if _, ok := written[c]; !ok {
			out = append(out, j.expired(c))
		}
	}
	return out
}

// clear returns clearing cookies for every session cookie in existing.
func (j cookieJar) clear(existing []*http.Cookie) []*http.Cookie {
	names := j.owned(existing)
	out := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		out = append(out, j.expired(name))
	}
	return out
}

// owned lists the names in existing that belong to the session cookie, sorted.
func (j cookieJar) owned(existing []*http.Cookie) []string {
	var names []string
	for _, c := range existing {
		if c.Name == j.key {
			names = append(names, c.Name)
			continue
		}
		if _, ok := j.chunkIndex(c.Name); ok {
			names = append(names, c.Name)
		}
	}
	sort.Strings(names)
	return names
}

func (j cookieJar) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   cookieMaxAge,
		Expires:  time.Now().Add(cookieMaxAge * time.Second),
		SameSite: http.SameSiteLaxMode,
		Secure:   j.secure,
	}
}

func (j cookieJar) expired(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		SameSite: http.SameSiteLaxMode,
		Secure:   j.secure,
	}
}

// encodeSession serializes a session into the base64url cookie format.
func encodeSession(s *Session) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	return base64Prefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// decodeSession accepts both the base64url format and the older URI-encoded JSON format.
func decodeSession(value string) (*Session, error) {
	var raw []byte
	if encoded, ok := strings.CutPrefix(value, base64Prefix); ok {
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return nil, fmt.Errorf("decode session cookie: %w", err)
		}
		raw = decoded
	} else {
		unescaped, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("unescape session cookie: %w", err)
		}
		raw = []byte(unescaped)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session cookie: %w", err)
	}
	if s.AccessToken == "" || s.RefreshToken == "" {
		return nil, fmt.Errorf("session cookie is missing tokens")
	}
	return &s, nil
}
