package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	analyticsadmin "google.golang.org/api/analyticsadmin/v1beta"
	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"gavault/pkg/logging"
)

const accountSummariesPageSize = 200

// GoogleConfig configures a GoogleReporter. Empty endpoints use the public
// Google API hosts.
type GoogleConfig struct {
	AdminEndpoint string
	DataEndpoint  string
	HTTPClient    *http.Client
	UserAgent     string
}

// GoogleReporter talks to the Analytics Admin and Data APIs.
type GoogleReporter struct {
	cfg GoogleConfig
}

// NewGoogleReporter creates a GoogleReporter.
func NewGoogleReporter(cfg GoogleConfig) *GoogleReporter {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "gavault"
	}
	return &GoogleReporter{cfg: cfg}
}

// clientOptions authenticates every API call with accessToken on top of the
// configured base client.
func (g *GoogleReporter) clientOptions(ctx context.Context, accessToken, endpoint string) []option.ClientOption {
	base := context.WithValue(ctx, oauth2.HTTPClient, g.cfg.HTTPClient)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})

	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(base, ts)),
		option.WithUserAgent(g.cfg.UserAgent),
	}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}

// ListProperties returns every account and property visible to the token.
func (g *GoogleReporter) ListProperties(ctx context.Context, accessToken string) ([]Account, error) {
	svc, err := analyticsadmin.NewService(ctx, g.clientOptions(ctx, accessToken, g.cfg.AdminEndpoint)...)
	if err != nil {
		return nil, fmt.Errorf("creating admin client: %w", err)
	}

	var accounts []Account
	err = svc.AccountSummaries.List().PageSize(accountSummariesPageSize).Pages(ctx,
		func(page *analyticsadmin.GoogleAnalyticsAdminV1betaListAccountSummariesResponse) error {
			for _, summary := range page.AccountSummaries {
				account := Account{
					ID:          strings.TrimPrefix(summary.Account, "accounts/"),
					DisplayName: summary.DisplayName,
					Properties:  []Property{},
				}
				for _, p := range summary.PropertySummaries {
					account.Properties = append(account.Properties, Property{
						ID:          strings.TrimPrefix(p.Property, "properties/"),
						DisplayName: p.DisplayName,
					})
				}
				accounts = append(accounts, account)
			}
			return nil
		})
	if err != nil {
		return nil, classify("listing account summaries", err)
	}

	logging.Debug("Analytics", "Listed %d analytics accounts", len(accounts))
	return accounts, nil
}

// RunReport runs a core report against one property.
func (g *GoogleReporter) RunReport(ctx context.Context, accessToken string, req ReportRequest) (*Report, error) {
	property, err := req.Normalize()
	if err != nil {
		return nil, err
	}

	svc, err := analyticsdata.NewService(ctx, g.clientOptions(ctx, accessToken, g.cfg.DataEndpoint)...)
	if err != nil {
		return nil, fmt.Errorf("creating data client: %w", err)
	}

	body := &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{{StartDate: req.StartDate, EndDate: req.EndDate}},
		Limit:      req.Limit,
	}
	for _, d := range req.Dimensions {
		body.Dimensions = append(body.Dimensions, &analyticsdata.Dimension{Name: d})
	}
	for _, m := range req.Metrics {
		body.Metrics = append(body.Metrics, &analyticsdata.Metric{Name: m})
	}

	resp, err := svc.Properties.RunReport(property, body).Context(ctx).Do()
	if err != nil {
		return nil, classify("running report", err)
	}
	return flatten(resp), nil
}

func flatten(resp *analyticsdata.RunReportResponse) *Report {
	report := &Report{Headers: []string{}, Rows: [][]string{}, RowCount: resp.RowCount}
	for _, h := range resp.DimensionHeaders {
		report.Headers = append(report.Headers, h.Name)
	}
	for _, h := range resp.MetricHeaders {
		report.Headers = append(report.Headers, h.Name)
	}
	for _, row := range resp.Rows {
		values := make([]string, 0, len(row.DimensionValues)+len(row.MetricValues))
		for _, v := range row.DimensionValues {
			values = append(values, v.Value)
		}
		for _, v := range row.MetricValues {
			values = append(values, v.Value)
		}
		report.Rows = append(report.Rows, values)
	}
	return report
}

// classify maps API errors onto the package sentinels. The API's message is
// kept because it names the offending field, never a token.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("%w: %s: %w", ErrUpstream, op, err)
	}

	switch gerr.Code {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidRequest, gerr.Message)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, op)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, gerr.Message)
	default:
		logging.Warn("Analytics", "Analytics API returned %d while %s", gerr.Code, op)
		return fmt.Errorf("%w: %s: status %d", ErrUpstream, op, gerr.Code)
	}
}
