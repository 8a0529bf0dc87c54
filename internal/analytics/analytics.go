// Package analytics is the narrow client for the Google Analytics APIs that a
// connected credential unlocks. Callers hand it a fresh access token obtained
// from the refresh engine; it never sees refresh tokens.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidRequest means the report request was rejected locally or by the API.
	ErrInvalidRequest = errors.New("invalid analytics request")
	// ErrUnauthorized means the API did not accept the access token.
	ErrUnauthorized = errors.New("analytics API rejected the access token")
	// ErrForbidden means the credential has no access to the property.
	ErrForbidden = errors.New("no access to analytics property")
	// ErrUpstream is any other failure of the analytics API.
	ErrUpstream = errors.New("analytics API unavailable")
)

const (
	DefaultStartDate = "28daysAgo"
	DefaultEndDate   = "today"
	// MaxRows caps the rows a single report may return.
	MaxRows = 10000
	// DefaultRows is used when a request does not set a limit.
	DefaultRows = 1000
)

// Property is one GA4 property the credential can read.
type Property struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Account groups the properties of one Analytics account.
type Account struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"displayName"`
	Properties  []Property `json:"properties"`
}

// ReportRequest selects what to report on.
type ReportRequest struct {
	PropertyID string   `json:"propertyId"`
	StartDate  string   `json:"startDate,omitempty"`
	EndDate    string   `json:"endDate,omitempty"`
	Dimensions []string `json:"dimensions,omitempty"`
	Metrics    []string `json:"metrics"`
	Limit      int64    `json:"limit,omitempty"`
}

// Report is a flattened report: one header row followed by value rows.
type Report struct {
	Headers  []string   `json:"headers"`
	Rows     [][]string `json:"rows"`
	RowCount int64      `json:"rowCount"`
}

// Reporter reads from Google Analytics on behalf of a connected identity.
type Reporter interface {
	ListProperties(ctx context.Context, accessToken string) ([]Account, error)
	RunReport(ctx context.Context, accessToken string, req ReportRequest) (*Report, error)
}

var (
	propertyIDPattern = regexp.MustCompile(`^(properties/)?[0-9]+$`)
	fieldNamePattern  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_:]*$`)
)

// Normalize validates req, fills defaults and returns the property resource
// name ("properties/<id>").
func (req *ReportRequest) Normalize() (string, error) {
	id := strings.TrimSpace(req.PropertyID)
	if !propertyIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: propertyId must be numeric", ErrInvalidRequest)
	}
	if len(req.Metrics) == 0 {
		return "", fmt.Errorf("%w: at least one metric is required", ErrInvalidRequest)
	}
	for _, name := range append(append([]string{}, req.Metrics...), req.Dimensions...) {
		if !fieldNamePattern.MatchString(name) {
			return "", fmt.Errorf("%w: invalid field name %q", ErrInvalidRequest, name)
		}
	}
	if req.StartDate == "" {
		req.StartDate = DefaultStartDate
	}
	if req.EndDate == "" {
		req.EndDate = DefaultEndDate
	}
	switch {
	case req.Limit < 0:
		return "", fmt.Errorf("%w: limit must not be negative", ErrInvalidRequest)
	case req.Limit == 0:
		req.Limit = DefaultRows
	case req.Limit > MaxRows:
		req.Limit = MaxRows
	}

	if !strings.HasPrefix(id, "properties/") {
		id = "properties/" + id
	}
	return id, nil
}
