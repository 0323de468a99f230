package social

import (
	"errors"
	"maps"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/oauth2"
)

// ProviderError is a failed call to an identity provider: the token
// exchange or the user info fetch.
type ProviderError struct {
	Provider    string
	Operation   string
	Status      int
	Code        string
	Description string
	Err         error
	Raw         map[string]any
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}

	scope := strings.TrimSpace(e.Provider + " " + e.Operation)
	if scope == "" {
		scope = "provider"
	}

	switch {
	case e.Description != "":
		return scope + " failed: " + e.Description
	case e.Code != "":
		return scope + " failed: " + e.Code
	case e.Err != nil:
		return scope + " failed: " + e.Err.Error()
	}
	return scope + " failed"
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Metadata returns the non-empty fields, used as go-errors metadata
func (e *ProviderError) Metadata() map[string]any {
	if e == nil {
		return nil
	}

	meta := map[string]any{}
	put := func(key string, value any, ok bool) {
		if ok {
			meta[key] = value
		}
	}
	put("provider", e.Provider, e.Provider != "")
	put("operation", e.Operation, e.Operation != "")
	put("status", e.Status, e.Status != 0)
	put("code", e.Code, e.Code != "")
	put("description", e.Description, e.Description != "")
	put("raw", e.Raw, len(e.Raw) > 0)
	return meta
}

// newProviderError builds a ProviderError, lifting the OAuth error code
// and description out of an oauth2.RetrieveError when err is one.
func newProviderError(provider, operation string, status int, err error) *ProviderError {
	perr := &ProviderError{
		Provider:  provider,
		Operation: operation,
		Status:    status,
		Err:       err,
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		perr.Code = rerr.ErrorCode
		perr.Description = rerr.ErrorDescription
		if rerr.Response != nil {
			perr.Status = rerr.Response.StatusCode
		}
	}
	return perr
}

// wrapProviderError clones base with err as its source. Provider details
// travel as metadata so the HTTP layer can log them without leaking them.
func wrapProviderError(base *goerrors.Error, provider, operation string, err error) error {
	if base == nil {
		return err
	}

	meta := map[string]any{"provider": provider, "operation": operation}
	var perr *ProviderError
	switch {
	case errors.As(err, &perr):
		maps.Copy(meta, perr.Metadata())
	case err != nil:
		meta["error"] = err.Error()
	}

	out := base.Clone()
	if out == nil {
		out = base
	}
	if err != nil {
		out.Source = err
	}
	return out.WithMetadata(meta)
}
