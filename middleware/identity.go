package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// KeyExtractor derives the quota identity from a request. The returned
// string becomes the identity segment of the counter key, so two requests
// share a quota exactly when their identities are equal.
type KeyExtractor func(*http.Request) (string, error)

func remoteIP(r *http.Request) (string, error) {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// no port, e.g. a unix socket peer or a hand-built request
		ip = r.RemoteAddr
	}
	if ip == "" {
		return "", fmt.Errorf("%w: empty remote address", ErrKeyExtractionFailed)
	}
	return ip, nil
}

// ExtractIP identifies clients by the peer address of the connection.
func ExtractIP() KeyExtractor {
	return func(r *http.Request) (string, error) {
		ip, err := remoteIP(r)
		if err != nil {
			return "", err
		}
		return "ip:" + ip, nil
	}
}

// ExtractIPWithProxy trusts X-Forwarded-For (first hop) and then X-Real-IP
// before falling back to the peer address. Only use it behind a proxy that
// overwrites these headers.
func ExtractIPWithProxy() KeyExtractor {
	return func(r *http.Request) (string, error) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return "ip:" + ip, nil
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return "ip:" + xri, nil
		}

		ip, err := remoteIP(r)
		if err != nil {
			return "", err
		}
		return "ip:" + ip, nil
	}
}

// ExtractHeader uses the value of a request header, e.g. an API key.
func ExtractHeader(headerName string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		value := r.Header.Get(headerName)
		if value == "" {
			return "", fmt.Errorf("%w: header %s not found or empty", ErrKeyExtractionFailed, headerName)
		}
		return "header:" + headerName + ":" + value, nil
	}
}

// ExtractBearer uses the token of an "Authorization: Bearer <token>" header.
func ExtractBearer() KeyExtractor {
	return func(r *http.Request) (string, error) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			return "", fmt.Errorf("%w: missing Authorization header", ErrKeyExtractionFailed)
		}

		scheme, token, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			return "", fmt.Errorf("%w: invalid Authorization header format", ErrKeyExtractionFailed)
		}
		if token = strings.TrimSpace(token); token == "" {
			return "", fmt.Errorf("%w: empty bearer token", ErrKeyExtractionFailed)
		}

		return "bearer:" + token, nil
	}
}

// ExtractCookie uses the value of a cookie, e.g. a session id.
func ExtractCookie(cookieName string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		cookie, err := r.Cookie(cookieName)
		if err != nil {
			return "", fmt.Errorf("%w: cookie %s: %v", ErrKeyExtractionFailed, cookieName, err)
		}
		if cookie.Value == "" {
			return "", fmt.Errorf("%w: cookie %s is empty", ErrKeyExtractionFailed, cookieName)
		}
		return "cookie:" + cookieName + ":" + cookie.Value, nil
	}
}

// ExtractStatic puts every request under one identity, which turns the
// quota into a global one.
func ExtractStatic(identity string) KeyExtractor {
	return func(*http.Request) (string, error) {
		if identity == "" {
			return "", fmt.Errorf("%w: static identity is empty", ErrKeyExtractionFailed)
		}
		return identity, nil
	}
}

// ExtractComposite returns the first identity any of the extractors
// produces.
//
//	extractor := ExtractComposite(
//	    ExtractBearer(),
//	    ExtractIPWithProxy(), // anonymous clients
//	)
func ExtractComposite(extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) (string, error) {
		if len(extractors) == 0 {
			return "", fmt.Errorf("%w: no extractors configured", ErrKeyExtractionFailed)
		}

		var lastErr error
		for _, extract := range extractors {
			identity, err := extract(r)
			if err == nil && identity != "" {
				return identity, nil
			}
			lastErr = err
		}
		if lastErr == nil {
			return "", fmt.Errorf("%w: all extractors returned an empty identity", ErrKeyExtractionFailed)
		}
		return "", fmt.Errorf("%w: all extractors failed, last: %v", ErrKeyExtractionFailed, lastErr)
	}
}

// ParseKeyExtractorConfig builds an extractor from its configuration form.
// Entries separated by "|" are tried in order.
//
//	ip                    peer address
//	ip-proxy              X-Forwarded-For / X-Real-IP, then peer address
//	header:X-API-Key      header value
//	bearer                bearer token
//	cookie:session_id     cookie value
//	static:global         one shared identity
//	bearer|ip-proxy       bearer token, else client address
func ParseKeyExtractorConfig(config string) (KeyExtractor, error) {
	if strings.Contains(config, "|") {
		var extractors []KeyExtractor
		for _, part := range strings.Split(config, "|") {
			extractor, err := ParseKeyExtractorConfig(strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			extractors = append(extractors, extractor)
		}
		return ExtractComposite(extractors...), nil
	}

	kind, arg, hasArg := strings.Cut(config, ":")
	needArg := func() error {
		if !hasArg || arg == "" {
			return fmt.Errorf("%w: %s extractor requires the form '%s:<name>'", ErrInvalidConfig, kind, kind)
		}
		return nil
	}

	switch kind {
	case "", "ip":
		return ExtractIP(), nil
	case "ip-proxy":
		return ExtractIPWithProxy(), nil
	case "bearer":
		return ExtractBearer(), nil
	case "header":
		if err := needArg(); err != nil {
			return nil, err
		}
		return ExtractHeader(arg), nil
	case "cookie":
		if err := needArg(); err != nil {
			return nil, err
		}
		return ExtractCookie(arg), nil
	case "static":
		if err := needArg(); err != nil {
			return nil, err
		}
		return ExtractStatic(arg), nil
	default:
		return nil, fmt.Errorf("%w: unknown key extractor: %s", ErrInvalidConfig, kind)
	}
}
