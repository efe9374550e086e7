package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ETAnderson/pricetrail/internal/domain"
)

// Mode selects how much of the product document a fetch asks for.
type Mode string

const (
	// ModeFull requests static fields and price data.
	ModeFull Mode = "full"
	// ModePriceOnly requests price data alone.
	ModePriceOnly Mode = "price_only"
)

const (
	opFull      = "GetProduct"
	opPriceOnly = "GetProductPrice"
)

const queryFull = `query GetProduct($tpnc: ID!) {
  product(tpnc: $tpnc) {
    id
    title
    defaultImageUrl
    packSize { value units }
    price { actual unitPrice unitOfMeasure }
    promotions {
      promotionId
      promotionType
      startDate
      endDate
      description
      attributes
      price { beforeDiscount afterDiscount }
    }
  }
}`

const queryPriceOnly = `query GetProductPrice($tpnc: ID!) {
  product(tpnc: $tpnc) {
    id
    price { actual unitPrice unitOfMeasure }
    promotions {
      promotionId
      promotionType
      startDate
      endDate
      description
      attributes
      price { beforeDiscount afterDiscount }
    }
  }
}`

// Client fetches a single product's document from the catalog endpoint.
// Transport failures and non-200 statuses are retried with exponential
// backoff plus jitter; responses missing the product substructure are not.
type Client struct {
	HTTP *http.Client
	URL  string

	APIKey    string
	Region    string
	Language  string
	UserAgent string

	Attempts  int
	RetryBase time.Duration

	Log *log.Logger

	// test seams
	sleep  func(time.Duration)
	jitter func() time.Duration
}

// Fetch retrieves one product by id. The returned error is ErrNoData when
// the endpoint answered but carried no product, or a *TransientError when
// every attempt failed at the transport or HTTP layer.
func (c *Client) Fetch(ctx context.Context, id string, mode Mode) (domain.Observation, error) {
	if c.URL == "" {
		return domain.Observation{}, errors.New("fetch: product API URL is empty")
	}

	attempts := c.Attempts
	if attempts <= 0 {
		attempts = 5
	}
	base := c.RetryBase
	if base <= 0 {
		base = 2 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := base<<(attempt-1) + c.jitterDelay()
			c.logf("product %s: attempt %d/%d in %s after: %v", id, attempt+1, attempts, delay, lastErr)
			c.doSleep(delay)
		}

		body, err := c.do(ctx, id, mode)
		if err != nil {
			lastErr = err
			continue
		}
		return parseResponse(id, body)
	}

	return domain.Observation{}, &TransientError{Attempts: attempts, Err: lastErr}
}

func (c *Client) do(ctx context.Context, id string, mode Mode) ([]byte, error) {
	payload, err := buildPayload(id, mode)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("content-type", "application/json")
	if c.Region != "" {
		req.Header.Set("region", c.Region)
	}
	if c.Language != "" {
		req.Header.Set("language", c.Language)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.APIKey != "" {
		req.Header.Set("x-apikey", c.APIKey)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

type operation struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Extensions    map[string]any `json:"extensions"`
	Query         string         `json:"query"`
}

// buildPayload wraps the single operation in an array. The endpoint is
// batch-shaped and rejects bare objects.
func buildPayload(id string, mode Mode) ([]byte, error) {
	op := operation{
		Variables:  map[string]any{"tpnc": id},
		Extensions: map[string]any{"mfeName": "mfe-pdp"},
	}
	switch mode {
	case ModePriceOnly:
		op.OperationName = opPriceOnly
		op.Query = queryPriceOnly
	default:
		op.OperationName = opFull
		op.Query = queryFull
	}
	return json.Marshal([]operation{op})
}

type wireEnvelope struct {
	Data struct {
		Product *wireProduct `json:"product"`
	} `json:"data"`
}

type wireProduct struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	DefaultImageURL string          `json:"defaultImageUrl"`
	PackSize        []wirePackSize  `json:"packSize"`
	Price           *wirePrice      `json:"price"`
	Promotions      []wirePromotion `json:"promotions"`
}

type wirePackSize struct {
	Value *decimal.Decimal `json:"value"`
	Units string           `json:"units"`
}

type wirePrice struct {
	Actual        *decimal.Decimal `json:"actual"`
	UnitPrice     *decimal.Decimal `json:"unitPrice"`
	UnitOfMeasure string           `json:"unitOfMeasure"`
}

type wirePromoPrice struct {
	BeforeDiscount *decimal.Decimal `json:"beforeDiscount"`
	AfterDiscount  *decimal.Decimal `json:"afterDiscount"`
}

type wirePromotion struct {
	PromotionID   string          `json:"promotionId"`
	PromotionType string          `json:"promotionType"`
	StartDate     string          `json:"startDate"`
	EndDate       string          `json:"endDate"`
	Description   string          `json:"description"`
	Attributes    []string        `json:"attributes"`
	Price         *wirePromoPrice `json:"price"`
}

func parseResponse(id string, body []byte) (domain.Observation, error) {
	var envelopes []wireEnvelope
	if err := json.Unmarshal(body, &envelopes); err != nil {
		return domain.Observation{}, fmt.Errorf("%w: %v", ErrNoData, err)
	}
	if len(envelopes) != 1 {
		return domain.Observation{}, fmt.Errorf("%w: expected 1 result, got %d", ErrNoData, len(envelopes))
	}

	p := envelopes[0].Data.Product
	if p == nil || p.Price == nil || p.Price.Actual == nil {
		return domain.Observation{}, ErrNoData
	}

	obs := domain.Observation{
		ID:       id,
		Title:    p.Title,
		ImageURL: p.DefaultImageURL,
		Price: &domain.PriceInfo{
			Actual:        *p.Price.Actual,
			UnitPrice:     p.Price.UnitPrice,
			UnitOfMeasure: p.Price.UnitOfMeasure,
		},
	}
	if len(p.PackSize) > 0 {
		obs.PackSizeValue = p.PackSize[0].Value
		obs.PackSizeUnit = p.PackSize[0].Units
	}

	for _, pr := range p.Promotions {
		info := domain.PromotionInfo{
			ID:          pr.PromotionID,
			Type:        pr.PromotionType,
			Description: pr.Description,
			Attributes:  pr.Attributes,
			Start:       parseWireTime(pr.StartDate),
			End:         parseWireTime(pr.EndDate),
		}
		if pr.Price != nil {
			info.BeforeDiscount = pr.Price.BeforeDiscount
			info.AfterDiscount = pr.Price.AfterDiscount
		}
		obs.Promotions = append(obs.Promotions, info)
	}
	return obs, nil
}

// parseWireTime accepts the two date shapes the endpoint is known to emit.
// Anything else is treated as absent rather than failing the observation.
func parseWireTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func (c *Client) doSleep(d time.Duration) {
	if c.sleep != nil {
		c.sleep(d)
		return
	}
	time.Sleep(d)
}

func (c *Client) jitterDelay() time.Duration {
	if c.jitter != nil {
		return c.jitter()
	}
	return time.Duration(rand.Int63n(int64(time.Second)))
}

func (c *Client) logf(format string, args ...any) {
	if c.Log != nil {
		c.Log.Printf(format, args...)
	}
}
