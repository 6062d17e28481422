// Package pagination drives multi-request fetch orchestration on top of the
// single-call client: OData page loops and parallel batch fetches against
// path templates.
package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hrops/adp-api-client/pkg/client"
	"github.com/hrops/adp-api-client/pkg/odata"
)

// MaxPageSize is the largest page size the API accepts.
const MaxPageSize = 100

// Prometheus metrics for pagination.
var (
	pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adp_pages_fetched_total",
		Help: "Total pages fetched by endpoint",
	}, []string{"endpoint"})

	paginationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adp_pagination_duration_seconds",
		Help:    "Full pagination loop duration in seconds by endpoint",
		Buckets: []float64{0.5, 1, 5, 15, 60, 300},
	}, []string{"endpoint"})
)

// PageOptions configures one pagination run. The zero value requests full
// pages of masked records with no projection or filter.
type PageOptions struct {
	// Select lists the fields to project ($select). Empty means all fields.
	Select []string

	// Filter narrows the result set ($filter).
	Filter odata.Expr

	// RawFilter is a pre-formatted filter string, passed through untouched.
	// Ignored when Filter is set.
	RawFilter string

	// Unmasked requests unredacted values for fields the API masks by
	// default.
	Unmasked bool

	// PageSize is the records-per-request count ($top). Values above
	// MaxPageSize are clamped with a warning; zero or negative means
	// MaxPageSize.
	PageSize int

	// MaxRequests caps the number of page requests. Zero means unlimited.
	MaxRequests int
}

// odataQuery is the query-parameter shape of one page request.
type odataQuery struct {
	Top    int    `url:"$top"`
	Skip   int    `url:"$skip"`
	Select string `url:"$select,omitempty"`
	Filter string `url:"$filter,omitempty"`
}

// Paginator fetches all pages of a collection endpoint.
type Paginator struct {
	client *client.Client
	logger zerolog.Logger
}

// NewPaginator creates a paginator on top of an existing client.
func NewPaginator(c *client.Client) *Paginator {
	return &Paginator{
		client: c,
		logger: log.With().Str("component", "paginator").Logger(),
	}
}

// CallEndpoint fetches every page of a collection endpoint and returns the
// records as one flat sequence, preserving page order and within-page
// order. A page whose body is a JSON array contributes its elements; an
// object body contributes itself as a single record. The loop stops on
// HTTP 204, on an empty page, or when opts.MaxRequests is reached.
func (p *Paginator) CallEndpoint(ctx context.Context, endpoint string, opts PageOptions) ([]json.RawMessage, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = MaxPageSize
	}
	if pageSize > MaxPageSize {
		p.logger.Warn().
			Int("page_size", pageSize).
			Int("max", MaxPageSize).
			Msg("Page size above API maximum, clamping")
		pageSize = MaxPageSize
	}

	filter, err := p.filterParam(opts)
	if err != nil {
		return nil, err
	}

	q := odataQuery{
		Top:    pageSize,
		Select: strings.Join(opts.Select, ","),
		Filter: filter,
	}

	logger := p.logger.With().Str("endpoint", endpoint).Logger()
	if q.Select != "" {
		logger.Debug().Str("select", q.Select).Msg("Restricting selection")
	}
	if q.Filter != "" {
		logger.Debug().Str("filter", q.Filter).Msg("Filtering results")
	}

	start := time.Now()
	var records []json.RawMessage
	requests := 0

	for {
		q.Skip = requests * pageSize
		values, err := query.Values(q)
		if err != nil {
			return nil, fmt.Errorf("encode query: %w", err)
		}

		resp, err := p.client.Do(ctx, client.RequestSpec{
			Method: http.MethodGet,
			Path:   endpoint,
			Query:  values,
			Masked: !opts.Unmasked,
		})
		if err != nil {
			return nil, err
		}
		requests++
		pagesFetched.WithLabelValues(endpoint).Inc()

		if resp.NoContent() {
			logger.Debug().Int("requests", requests).Msg("End of pagination (204 No Content)")
			break
		}

		page, err := flattenRecords(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("decode page %d of %s: %w", requests, endpoint, err)
		}
		if len(page) == 0 {
			logger.Debug().Int("requests", requests).Msg("End of pagination (empty page)")
			break
		}
		records = append(records, page...)

		if opts.MaxRequests > 0 && requests >= opts.MaxRequests {
			logger.Debug().Int("max_requests", opts.MaxRequests).Msg("Max requests reached")
			break
		}
	}

	paginationDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	logger.Info().
		Int("requests", requests).
		Int("records", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Pagination complete")

	return records, nil
}

// filterParam serializes the configured filter. Outer grouping parentheses
// are redundant at the top level of a $filter value and are stripped.
func (p *Paginator) filterParam(opts PageOptions) (string, error) {
	if !opts.Filter.IsZero() {
		return trimOuterParens(opts.Filter.Serialize()), nil
	}
	if opts.RawFilter != "" {
		if _, err := odata.Parse(opts.RawFilter); err != nil {
			p.logger.Error().Str("filter", opts.RawFilter).Msg("Error parsing filter expression")
			return "", err
		}
		return opts.RawFilter, nil
	}
	return "", nil
}

// flattenRecords splits a page body into records: array bodies contribute
// their elements, object bodies contribute one record.
func flattenRecords(body []byte) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var elements []json.RawMessage
		if err := json.Unmarshal(body, &elements); err != nil {
			return nil, err
		}
		return elements, nil
	}

	var record json.RawMessage
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, err
	}
	return []json.RawMessage{record}, nil
}

// trimOuterParens removes one pair of redundant outer parentheses when it
// wraps the whole expression.
func trimOuterParens(s string) string {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return s
	}
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				// The opening paren closes before the end, so the
				// outer pair does not wrap the whole string.
				return s
			}
		}
	}
	return s[1 : len(s)-1]
}
