package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

const DefaultBaseURL = "https://www.okx.com"

// Credentials sign private requests of one OKX account.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// Client is a REST client bound to one OKX account.
type Client struct {
	baseURL   string
	http      *http.Client
	creds     Credentials
	simulated bool
	now       func() time.Time
}

func NewClient(baseURL string, creds Credentials, simulated bool) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 10 * time.Second},
		creds:     creds,
		simulated: simulated,
		now:       time.Now,
	}
}

// APIError is a non-zero OKX response code.
type APIError struct {
	Path string
	Code string
	Msg  string
}

func (e *APIError) Error() string {
	return "okx " + e.Path + ": code=" + e.Code + " msg=" + e.Msg
}

type envelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

// Sign returns the OK-ACCESS-SIGN value for one request.
func Sign(secret, ts, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// call performs one request and decodes the data array of the response.
func call[T any](ctx context.Context, c *Client, method, path string, query url.Values, body any, private bool) ([]T, error) {
	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = sonic.Marshal(body); err != nil {
			return nil, errors.Wrapf(err, "marshal %s", path)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrapf(err, "new request %s", path)
	}
	req.Header.Set("Content-Type", "application/json")
	if private {
		ts := timestamp(c.now())
		req.Header.Set("OK-ACCESS-KEY", c.creds.APIKey)
		req.Header.Set("OK-ACCESS-SIGN", Sign(c.creds.APISecret, ts, method, requestPath, string(payload)))
		req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
		req.Header.Set("OK-ACCESS-PASSPHRASE", c.creds.Passphrase)
	}
	if c.simulated {
		req.Header.Set("x-simulated-trading", "1")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "do %s", path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("okx %s: http %d: %s", path, resp.StatusCode, string(data))
	}

	var env envelope[T]
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	if env.Code != "0" {
		return env.Data, &APIError{Path: path, Code: env.Code, Msg: env.Msg}
	}
	return env.Data, nil
}

func FormatSize(qty int) string { return strconv.Itoa(qty) }

func FormatPrice(px float64) string { return strconv.FormatFloat(px, 'f', -1, 64) }

func parseFloat(name, s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s %q", name, s)
	}
	return v, nil
}

// ClientID turns an arbitrary id into an OKX client order id: alphanumerics only,
// at most 32 characters.
func ClientID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == 32 {
				break
			}
		}
	}
	return b.String()
}
