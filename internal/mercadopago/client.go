// Package mercadopago is a minimal client for the Mercado Pago REST API.
package mercadopago

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xenking/storefront-checkout/internal/domain/payment"
)

var (
	_ payment.Provider          = (*Client)(nil)
	_ payment.PreferenceCreator = (*Client)(nil)
)

// StatusError is returned for non-2xx API responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mercadopago: unexpected status %d: %s", e.Code, e.Body)
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	// HTTPClient overrides the instrumented default client.
	HTTPClient *http.Client
}

// Client calls the payments and checkout preferences endpoints. Calls run
// through a circuit breaker that opens after consecutive transport or 5xx
// failures.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[[]byte]
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "mercadopago",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < http.StatusInternalServerError
			}
			return err == nil
		},
	})

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.AccessToken,
		http:    hc,
		cb:      cb,
	}
}

// GetPayment fetches a payment. A 404 yields payment.ErrPaymentNotFound.
func (c *Client) GetPayment(ctx context.Context, id string) (*payment.Payment, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(id), nil)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, errors.Wrapf(err, "get payment %s", id)
	}

	p, err := decodePayment(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode payment")
	}
	return p, nil
}

// CreatePreference opens a checkout preference.
func (c *Client) CreatePreference(ctx context.Context, req payment.PreferenceRequest) (*payment.Preference, error) {
	body, err := c.do(ctx, http.MethodPost, "/checkout/preferences", encodePreference(req))
	if err != nil {
		return nil, errors.Wrap(err, "create preference")
	}

	p, err := decodePreference(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode preference")
	}
	return p, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	return c.cb.Execute(func() ([]byte, error) {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, errors.Wrap(err, "build request")
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, errors.Wrap(err, "read body")
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 256)}
		}
		return body, nil
	})
}

func encodePreference(req payment.PreferenceRequest) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range req.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("title", func(e *jx.Encoder) { e.Str(it.Title) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("unit_price", func(e *jx.Encoder) { e.Num(jx.Num(it.UnitPrice.StringFixed(2))) })
						e.Field("currency_id", func(e *jx.Encoder) { e.Str("ARS") })
					})
				}
			})
		})
		e.Field("external_reference", func(e *jx.Encoder) { e.Str(req.ExternalReference) })
		if req.BackURLs != (payment.BackURLs{}) {
			e.Field("back_urls", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("success", func(e *jx.Encoder) { e.Str(req.BackURLs.Success) })
					e.Field("failure", func(e *jx.Encoder) { e.Str(req.BackURLs.Failure) })
					e.Field("pending", func(e *jx.Encoder) { e.Str(req.BackURLs.Pending) })
				})
			})
			e.Field("auto_return", func(e *jx.Encoder) { e.Str("approved") })
		}
	})

	return append([]byte(nil), e.Bytes()...)
}

func decodePayment(body []byte) (*payment.Payment, error) {
	var p payment.Payment
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := payment.DecodeScalar(d)
			p.ID = v
			return err
		case "status":
			v, err := payment.DecodeScalar(d)
			p.Status = v
			return err
		case "external_reference":
			v, err := payment.DecodeScalar(d)
			p.ExternalReference = strings.TrimSpace(v)
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func decodePreference(body []byte) (*payment.Preference, error) {
	var p payment.Preference
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := payment.DecodeScalar(d)
			p.ID = v
			return err
		case "init_point":
			v, err := payment.DecodeScalar(d)
			p.RedirectURL = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errors.New("preference id missing")
	}
	return &p, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
