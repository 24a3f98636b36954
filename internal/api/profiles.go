package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ProfileSummary is one entry of the profile list
type ProfileSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	BuiltIn     bool   `json:"builtin,omitempty"`
}

// ListProfiles returns the profiles known to the backend. Entries may be
// plain names or objects.
func (c *Client) ListProfiles(ctx context.Context) ([]ProfileSummary, error) {
	var resp struct {
		Profiles *[]json.RawMessage `json:"profiles"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/geopol/profiles", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Profiles == nil {
		return nil, fmt.Errorf("/api/geopol/profiles: %w: profiles", ErrMissingField)
	}

	out := make([]ProfileSummary, 0, len(*resp.Profiles))
	for _, raw := range *resp.Profiles {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			out = append(out, ProfileSummary{Name: name})
			continue
		}
		var s ProfileSummary
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("/api/geopol/profiles: invalid entry: %w", err)
		}
		if s.Name != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func profilePath(name string) string {
	return "/api/geopol/profiles/" + url.PathEscape(name)
}

// GetProfile returns the raw profile document
func (c *Client) GetProfile(ctx context.Context, name string) (json.RawMessage, error) {
	var resp struct {
		Profile json.RawMessage `json:"profile"`
	}
	path := profilePath(name)
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if isEmptyJSON(resp.Profile) {
		return nil, fmt.Errorf("%s: %w: profile", path, ErrMissingField)
	}
	return resp.Profile, nil
}

// SaveProfile stores a profile document
func (c *Client) SaveProfile(ctx context.Context, profile interface{}) error {
	return c.call(ctx, http.MethodPost, "/api/geopol/profiles", profile, nil)
}

// FromStateRequest asks the backend to build a profile from a captured state
type FromStateRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	State       interface{} `json:"state"`
}

// SaveProfileFromState lets the backend build and store a profile from the
// given state, returning the stored document
func (c *Client) SaveProfileFromState(ctx context.Context, req FromStateRequest) (json.RawMessage, error) {
	var resp struct {
		Profile json.RawMessage `json:"profile"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/geopol/profiles/from-state", req, &resp); err != nil {
		return nil, err
	}
	if isEmptyJSON(resp.Profile) {
		return nil, fmt.Errorf("/api/geopol/profiles/from-state: %w: profile", ErrMissingField)
	}
	return resp.Profile, nil
}

// DeleteProfile removes a profile
func (c *Client) DeleteProfile(ctx context.Context, name string) error {
	return c.call(ctx, http.MethodDelete, profilePath(name), nil, nil)
}

// ValidationResult is the answer of the validate endpoint
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Reason returns a human readable rejection reason
func (v ValidationResult) Reason() string {
	if len(v.Errors) == 0 {
		return "profile rejected by server"
	}
	return strings.Join(v.Errors, "; ")
}

// ValidateProfile asks the backend to validate a profile document. A
// success:false answer is returned as a valid=false result with the server
// reason, not as a transport error.
func (c *Client) ValidateProfile(ctx context.Context, profile interface{}) (ValidationResult, error) {
	resp := struct {
		Valid *bool `json:"valid"`
		ValidationResult
	}{}
	err := c.call(ctx, http.MethodPost, "/api/geopol/profiles/validate", profile, &resp)
	if err != nil {
		var be *BackendError
		if errors.As(err, &be) {
			return ValidationResult{Valid: false, Errors: []string{firstNonEmpty(be.Message, "profile rejected by server")}}, nil
		}
		return ValidationResult{}, err
	}
	result := resp.ValidationResult
	result.Valid = resp.Valid == nil || *resp.Valid
	return result, nil
}
