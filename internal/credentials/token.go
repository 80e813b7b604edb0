// Package credentials inspects and redacts the bearer credentials handed to
// the registrar so they can be described in logs without being leaked.
package credentials

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const visiblePrefix = 4

// Redact keeps the first few characters of secret and masks the rest.
func Redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= visiblePrefix {
		return strings.Repeat("*", len(secret))
	}
	return secret[:visiblePrefix] + strings.Repeat("*", 8)
}

// Info describes a credential without exposing it.
type Info struct {
	Name      string
	Redacted  string
	IsJWT     bool
	Subject   string
	Issuer    string
	ExpiresAt *time.Time
}

// Expired reports whether the token carries an expiry that is before now.
func (i Info) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && i.ExpiresAt.Before(now)
}

// LogValue implements slog.LogValuer.
func (i Info) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("value", i.Redacted),
		slog.Bool("jwt", i.IsJWT),
	}
	if i.Subject != "" {
		attrs = append(attrs, slog.String("sub", i.Subject))
	}
	if i.Issuer != "" {
		attrs = append(attrs, slog.String("iss", i.Issuer))
	}
	if i.ExpiresAt != nil {
		attrs = append(attrs, slog.Time("exp", *i.ExpiresAt))
	}
	return slog.GroupValue(attrs...)
}

// Inspect decodes the claims of a JWT without verifying its signature. The
// registrar never holds the signing key; the services verify the token.
// Non-JWT credentials such as API keys yield an Info with IsJWT false.
func Inspect(name, token string) Info {
	info := Info{Name: name, Redacted: Redact(token)}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return info
	}
	info.IsJWT = true

	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if iss, err := claims.GetIssuer(); err == nil {
		info.Issuer = iss
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		info.ExpiresAt = &t
	}
	return info
}

// Describe inspects each credential and logs it, warning about expired tokens.
func Describe(logger *slog.Logger, now time.Time, creds map[string]string) []Info {
	names := make([]string, 0, len(creds))
	for name := range creds {
		names = append(names, name)
	}
	sort.Strings(names)

	infos := make([]Info, 0, len(names))
	for _, name := range names {
		info := Inspect(name, creds[name])
		infos = append(infos, info)
		if info.Expired(now) {
			logger.Warn("credential is expired, registration will likely be rejected",
				"credential", name, "token", info)
			continue
		}
		logger.Info("credential loaded", "credential", name, "token", info)
	}
	return infos
}
