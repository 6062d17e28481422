package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/hrops/adp-api-client/internal/testutil"
	"github.com/hrops/adp-api-client/pkg/client"
)

func TestCallRESTEndpointSingleValue(t *testing.T) {
	mock := testutil.NewMockADP()
	defer mock.Close()

	mock.SetResponse("/hr/v2/workers/123", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"workerID":"123","status":"Active"}`,
	})

	b := NewBatchFetcher(newTestClient(t, mock))
	results, err := b.CallRESTEndpoint(context.Background(), "/hr/v2/workers/{workerId}",
		map[string]any{"workerId": "123"}, BatchOptions{})
	if err != nil {
		t.Fatalf("CallRESTEndpoint: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("element error: %v", results[0].Err)
	}

	var got map[string]string
	if err := json.Unmarshal(results[0].Data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["workerID"] != "123" {
		t.Errorf("data = %v", got)
	}
}

func TestCallRESTEndpointOrderIndependentOfCompletion(t *testing.T) {
	mock := testutil.NewMockADP()
	defer mock.Close()

	// A answers slowest, C fastest; results must still come back A, B, C.
	delays := map[string]time.Duration{"A": 60 * time.Millisecond, "B": 30 * time.Millisecond, "C": 0}
	for id, delay := range delays {
		mock.SetResponse("/hr/v2/workers/"+id, testutil.MockResponse{
			StatusCode: http.StatusOK,
			Body:       fmt.Sprintf(`{"workerID":%q}`, id),
			Delay:      delay,
		})
	}

	b := NewBatchFetcher(newTestClient(t, mock))
	results, err := b.CallRESTEndpoint(context.Background(), "/hr/v2/workers/{workerId}",
		map[string]any{"workerId": []string{"A", "B", "C"}},
		BatchOptions{MaxWorkers: 3})
	if err != nil {
		t.Fatalf("CallRESTEndpoint: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for i, id := range []string{"A", "B", "C"} {
		var got map[string]string
		if err := json.Unmarshal(results[i].Data, &got); err != nil {
			t.Fatalf("result %d: %v", i, err)
		}
		if got["workerID"] != id {
			t.Errorf("result %d = %v, want workerID=%s", i, got, id)
		}
	}
}

func TestCallRESTEndpointRefreshesTokenOnce(t *testing.T) {
	mock := testutil.NewMockADP()
	defer mock.Close()

	for _, id := range []string{"A", "B", "C", "D"} {
		mock.SetResponse("/hr/v2/workers/"+id, testutil.MockResponse{
			StatusCode: http.StatusOK,
			Body:       `{}`,
			Delay:      10 * time.Millisecond,
		})
	}

	b := NewBatchFetcher(newTestClient(t, mock))
	_, err := b.CallRESTEndpoint(context.Background(), "/hr/v2/workers/{workerId}",
		map[string]any{"workerId": []string{"A", "B", "C", "D"}},
		BatchOptions{MaxWorkers: 4})
	if err != nil {
		t.Fatalf("CallRESTEndpoint: %v", err)
	}

	if got := mock.TokenCount(); got != 1 {
		t.Errorf("token requests = %d, want exactly 1", got)
	}
}

func TestCallRESTEndpointCollectsElementFailures(t *testing.T) {
	mock := testutil.NewMockADP()
	defer mock.Close()

	mock.SetResponse("/hr/v2/workers/A", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"workerID":"A"}`,
	})
	mock.SetResponse("/hr/v2/workers/B", testutil.MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error":"unknown worker"}`,
	})
	mock.SetResponse("/hr/v2/workers/C", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"workerID":"C"}`,
	})

	b := NewBatchFetcher(newTestClient(t, mock))
	results, err := b.CallRESTEndpoint(context.Background(), "/hr/v2/workers/{workerId}",
		map[string]any{"workerId": []string{"A", "B", "C"}},
		BatchOptions{MaxWorkers: 2})

	if err == nil {
		t.Fatal("expected joined element error, got nil")
	}
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("joined error = %v, want wrapped 404 APIError", err)
	}

	// Every element still has its aligned outcome slot.
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("successful elements carry errors: %v, %v", results[0].Err, results[2].Err)
	}
	if results[1].Err == nil {
		t.Error("failed element carries no error")
	}
	if results[1].Data != nil {
		t.Errorf("failed element carries data: %s", results[1].Data)
	}
}

func TestCallRESTEndpointSequentialByDefault(t *testing.T) {
	mock := testutil.NewMockADP()
	defer mock.Close()

	var inFlight, maxInFlight int
	var order []string
	mock.SetHandler("/hr/v2/workers/A", trackingHandler(&inFlight, &maxInFlight, &order, "A"))
	mock.SetHandler("/hr/v2/workers/B", trackingHandler(&inFlight, &maxInFlight, &order, "B"))

	b := NewBatchFetcher(newTestClient(t, mock))
	_, err := b.CallRESTEndpoint(context.Background(), "/hr/v2/workers/{workerId}",
		map[string]any{"workerId": []string{"A", "B"}}, BatchOptions{})
	if err != nil {
		t.Fatalf("CallRESTEndpoint: %v", err)
	}

	if maxInFlight != 1 {
		t.Errorf("max in-flight = %d, want 1 (sequential)", maxInFlight)
	}
	if len(order) != 2 || order[0] != "A" || order[1] != "B" {
		t.Errorf("dispatch order = %v, want [A B]", order)
	}
}

// trackingHandler records dispatch order and concurrent in-flight count.
// Safe only for sequential batches; parallel tests assert order via the
// result slice instead.
func trackingHandler(inFlight, maxInFlight *int, order *[]string, id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*inFlight++
		if *inFlight > *maxInFlight {
			*maxInFlight = *inFlight
		}
		*order = append(*order, id)
		time.Sleep(5 * time.Millisecond)
		*inFlight--
		fmt.Fprint(w, `{}`)
	}
}

func TestCallRESTEndpointInjectPathParams(t *testing.T) {
	mock := testutil.NewMockADP()
	defer mock.Close()

	for _, id := range []string{"A", "B"} {
		mock.SetResponse("/hr/v2/workers/"+id, testutil.MockResponse{
			StatusCode: http.StatusOK,
			Body:       `{"status":"Active"}`,
		})
	}

	b := NewBatchFetcher(newTestClient(t, mock))
	results, err := b.CallRESTEndpoint(context.Background(), "/hr/v2/workers/{workerId}",
		map[string]any{"workerId": []string{"A", "B"}},
		BatchOptions{InjectPathParams: true})
	if err != nil {
		t.Fatalf("CallRESTEndpoint: %v", err)
	}

	for i, id := range []string{"A", "B"} {
		var got map[string]any
		if err := json.Unmarshal(results[i].Data, &got); err != nil {
			t.Fatalf("result %d: %v", i, err)
		}
		if got["workerId"] != id {
			t.Errorf("result %d missing injected workerId: %v", i, got)
		}
		if got["status"] != "Active" {
			t.Errorf("result %d lost original fields: %v", i, got)
		}
	}
}

func TestCallRESTEndpointValidationBeforeNetwork(t *testing.T) {
	mock := testutil.NewMockADP()
	defer mock.Close()

	b := NewBatchFetcher(newTestClient(t, mock))

	tests := []struct {
		name     string
		template string
		params   map[string]any
		want     error
	}{
		{
			name:     "malformed template",
			template: "hr/v2/workers/{workerId}",
			params:   map[string]any{"workerId": "1"},
			want:     ErrInvalidTemplate,
		},
		{
			name:     "missing parameter",
			template: "/hr/v2/workers/{workerId}",
			params:   map[string]any{},
			want:     ErrMissingPathParams,
		},
		{
			name:     "two list parameters",
			template: "/hr/v2/workers/{workerId}/jobs/{jobId}",
			params:   map[string]any{"workerId": []string{"a"}, "jobId": []string{"b"}},
			want:     ErrMultipleListParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.CallRESTEndpoint(context.Background(), tt.template, tt.params, BatchOptions{})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	if mock.RequestCount() != 0 {
		t.Errorf("network calls made for invalid input: %d", mock.RequestCount())
	}
}

func TestCallRESTEndpointMethodAndQuery(t *testing.T) {
	mock := testutil.NewMockADP()
	defer mock.Close()

	var method, asOf string
	mock.SetHandler("/hr/v2/workers/123", func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		asOf = r.URL.Query().Get("asOfDate")
		fmt.Fprint(w, `{}`)
	})

	b := NewBatchFetcher(newTestClient(t, mock))
	_, err := b.CallRESTEndpoint(context.Background(), "/hr/v2/workers/{workerId}",
		map[string]any{"workerId": "123"},
		BatchOptions{
			Method: http.MethodPost,
			Params: map[string][]string{"asOfDate": {"2024-01-01"}},
		})
	if err != nil {
		t.Fatalf("CallRESTEndpoint: %v", err)
	}

	if method != http.MethodPost {
		t.Errorf("method = %q, want POST", method)
	}
	if asOf != "2024-01-01" {
		t.Errorf("asOfDate = %q", asOf)
	}
}
