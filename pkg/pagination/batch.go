package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hrops/adp-api-client/pkg/client"
)

// Prometheus metrics for batch fetches.
var (
	batchElements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adp_batch_elements_total",
		Help: "Total batch elements by outcome",
	}, []string{"outcome"})

	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adp_batch_duration_seconds",
		Help:    "Batch fetch duration in seconds by endpoint template",
		Buckets: []float64{0.5, 1, 5, 15, 60, 300},
	}, []string{"template"})
)

// BatchOptions configures a batch fetch. Everything here applies uniformly
// to every substituted request.
type BatchOptions struct {
	// Method is the HTTP method. Empty means GET.
	Method string

	// Params are extra query parameters.
	Params url.Values

	// Unmasked requests unredacted values for fields the API masks by
	// default.
	Unmasked bool

	// MaxWorkers bounds the fan-out. Zero or one means strictly sequential.
	MaxWorkers int

	// InjectPathParams merges each element's resolved path parameters into
	// its JSON object response, so fanned-out results stay attributable to
	// their input value.
	InjectPathParams bool
}

// BatchResult is the outcome for one substituted path. Exactly one of Data
// and Err is meaningful.
type BatchResult struct {
	// Path is the concrete request path after substitution.
	Path string

	// Data is the decoded response body on success.
	Data json.RawMessage

	// Err is the element's failure, nil on success.
	Err error
}

// BatchFetcher fans requests out over the concrete paths of an endpoint
// template.
type BatchFetcher struct {
	client *client.Client
	logger zerolog.Logger
}

// NewBatchFetcher creates a batch fetcher on top of an existing client.
func NewBatchFetcher(c *client.Client) *BatchFetcher {
	return &BatchFetcher{
		client: c,
		logger: log.With().Str("component", "batch-fetcher").Logger(),
	}
}

// CallRESTEndpoint substitutes pathParams into the template and executes
// one request per resulting path. A string value substitutes directly; a
// []string value (at most one) fans out into one request per element.
//
// Results are index-aligned with the fan-out input order regardless of
// completion order: each worker writes into its own pre-assigned slot.
// Element failures do not abort the batch; every element gets an outcome
// in its slot and the joined element errors are returned alongside the
// full result set. Template and parameter problems fail before any
// network call.
//
// The token is refreshed once, synchronously, before workers start, so no
// worker triggers a refresh mid-batch.
func (b *BatchFetcher) CallRESTEndpoint(ctx context.Context, template string, pathParams map[string]any, opts BatchOptions) ([]BatchResult, error) {
	if !IsValidEndpointPath(template) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTemplate, template)
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	paths, resolved, err := SubstitutePathParams(template, pathParams)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}

	if _, err := b.client.Tokens().EnsureValid(ctx); err != nil {
		return nil, err
	}

	workers := opts.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	logger := b.logger.With().Str("template", template).Logger()
	logger.Debug().
		Int("elements", len(paths)).
		Int("workers", workers).
		Str("method", method).
		Msg("Starting batch fetch")

	start := time.Now()
	results := make([]BatchResult, len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = b.fetchElement(ctx, method, paths[i], resolved[i], opts)
			}
		}()
	}

	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var failures []error
	for i := range results {
		if results[i].Err != nil {
			batchElements.WithLabelValues("error").Inc()
			failures = append(failures, fmt.Errorf("element %d (%s): %w", i, results[i].Path, results[i].Err))
		} else {
			batchElements.WithLabelValues("success").Inc()
		}
	}

	batchDuration.WithLabelValues(template).Observe(time.Since(start).Seconds())
	logger.Info().
		Int("elements", len(paths)).
		Int("failed", len(failures)).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	return results, errors.Join(failures...)
}

// fetchElement executes one substituted request and shapes its outcome.
func (b *BatchFetcher) fetchElement(ctx context.Context, method, path string, params map[string]string, opts BatchOptions) BatchResult {
	result := BatchResult{Path: path}

	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	resp, err := b.client.Do(ctx, client.RequestSpec{
		Method: method,
		Path:   path,
		Query:  opts.Params,
		Masked: !opts.Unmasked,
	})
	if err != nil {
		result.Err = err
		return result
	}

	if resp.NoContent() {
		return result
	}

	data := json.RawMessage(resp.Body)
	if opts.InjectPathParams && len(params) > 0 {
		data, err = injectParams(data, params)
		if err != nil {
			result.Err = fmt.Errorf("inject path parameters: %w", err)
			return result
		}
	}

	result.Data = data
	return result
}

// injectParams merges resolved path-parameter values into a JSON object
// body. Non-object bodies are returned unchanged.
func injectParams(data json.RawMessage, params map[string]string) (json.RawMessage, error) {
	var object map[string]any
	if err := json.Unmarshal(data, &object); err != nil {
		// Arrays and scalars carry no natural merge target.
		return data, nil
	}

	for name, value := range params {
		if _, exists := object[name]; !exists {
			object[name] = value
		}
	}

	return json.Marshal(object)
}
