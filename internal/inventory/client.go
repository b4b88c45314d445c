package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/rocketcart/internal/domain"
	apperrors "github.com/utafrali/rocketcart/pkg/errors"
	"github.com/utafrali/rocketcart/pkg/httpclient"
	"github.com/utafrali/rocketcart/pkg/tracing"
)

const (
	serviceName = "inventory"
	tracerName  = "github.com/utafrali/rocketcart/internal/inventory"
)

// CircuitOpenFallback replaces the breaker's open-state error with a
// structured 503.
func CircuitOpenFallback(_ context.Context, _ error) (*http.Response, error) {
	return nil, apperrors.ServiceUnavailable("inventory service is temporarily unavailable")
}

// Client implements Service over the inventory HTTP API.
type Client struct {
	http    httpclient.Doer
	baseURL string
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewClient creates an inventory client rooted at baseURL. doer is normally
// an httpclient.CircuitBreakerClient with CircuitOpenFallback attached.
func NewClient(doer httpclient.Doer, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		http:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		tracer:  tracing.Tracer(tracerName),
	}
}

type stockResponse struct {
	ID     int `json:"id"`
	Amount int `json:"amount"`
}

type productResponse struct {
	ID    int     `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

// Stock fetches GET /stock/{id}.
func (c *Client) Stock(ctx context.Context, id int) (_ *domain.Stock, err error) {
	ctx, span := c.tracer.Start(ctx, "inventory.Stock",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("product.id", id)),
	)
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	resp, err := c.get(ctx, "/stock/"+strconv.Itoa(id))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}

	var body stockResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode stock %d: %w", id, err)
	}

	span.SetAttributes(attribute.Int("stock.amount", body.Amount))
	return &domain.Stock{ID: body.ID, Amount: body.Amount}, nil
}

// Product fetches GET /products/{id}. A 404 means the catalog has no
// record and yields (nil, nil). The amount field of the record is ignored.
func (c *Client) Product(ctx context.Context, id int) (_ *domain.Product, err error) {
	ctx, span := c.tracer.Start(ctx, "inventory.Product",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("product.id", id)),
	)
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	resp, err := c.get(ctx, "/products/"+strconv.Itoa(id))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.logger.DebugContext(ctx, "product has no catalog record", slog.Int("product_id", id))
		span.SetAttributes(attribute.Bool("product.found", false))
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}

	var body productResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode product %d: %w", id, err)
	}

	span.SetAttributes(attribute.Bool("product.found", true))
	return &domain.Product{
		ID:    body.ID,
		Title: body.Title,
		Price: body.Price,
		Image: body.Image,
	}, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s GET %s: %w", serviceName, path, err)
	}
	return resp, nil
}

// Ping checks that the inventory API answers. Used as a readiness check.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.get(ctx, "/stock")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return httpclient.ParseResponseError(resp, serviceName)
	}
	return nil
}
