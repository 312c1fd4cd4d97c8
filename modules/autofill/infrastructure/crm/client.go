package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/ports"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
	"github.com/jacksonlee411/contact-autofill/pkg/httperr"
	"golang.org/x/time/rate"
)

const errCRMRequestFailed = "CRM_REQUEST_FAILED"

// DefaultAPIVersion is sent in the Version header when none is configured.
const DefaultAPIVersion = "2021-07-28"

// Client talks to the CRM's contact and custom-field APIs. It implements
// ports.RecordStore and ports.FieldSchemaStore.
type Client struct {
	baseURL    string
	token      string
	version    string
	limiter    *rate.Limiter
	httpClient *http.Client
}

var (
	_ ports.RecordStore      = (*Client)(nil)
	_ ports.FieldSchemaStore = (*Client)(nil)
)

type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("crm: http %d: %s", e.StatusCode, msg)
}

// New validates baseURL and returns a client. A nil limiter leaves outbound
// calls unthrottled.
func New(baseURL string, token string, version string, limiter *rate.Limiter) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("crm: missing base url")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.New("crm: invalid base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("crm: invalid base url scheme")
	}
	if u.Host == "" {
		return nil, errors.New("crm: invalid base url host")
	}
	version = strings.TrimSpace(version)
	if version == "" {
		version = DefaultAPIVersion
	}
	return &Client{
		baseURL: baseURL,
		token:   strings.TrimSpace(token),
		version: version,
		limiter: limiter,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

func (c *Client) GetRecord(ctx context.Context, recordID string) (types.RecordAttributeSet, error) {
	var out struct {
		Contact *types.RecordAttributeSet `json:"contact"`
	}
	status, err := c.do(ctx, http.MethodGet, "/contacts/"+url.PathEscape(recordID), nil, &out)
	if status == http.StatusNotFound {
		return types.RecordAttributeSet{}, ports.ErrRecordNotFound
	}
	if err != nil {
		return types.RecordAttributeSet{}, err
	}
	if out.Contact == nil {
		return types.RecordAttributeSet{}, ports.ErrRecordNotFound
	}
	if out.Contact.ID == "" {
		out.Contact.ID = recordID
	}
	return *out.Contact, nil
}

func (c *Client) UpdateRecord(ctx context.Context, recordID string, payload types.RecordPayload) error {
	status, err := c.do(ctx, http.MethodPut, "/contacts/"+url.PathEscape(recordID), payload, nil)
	if status == http.StatusNotFound {
		return ports.ErrRecordNotFound
	}
	return err
}

func (c *Client) ListCustomFields(ctx context.Context, locationID string) ([]types.RemoteFieldSnapshot, error) {
	var out struct {
		CustomFields []types.RemoteFieldSnapshot `json:"customFields"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/locations/"+url.PathEscape(locationID)+"/customFields?model=contact", nil, &out); err != nil {
		return nil, err
	}
	if out.CustomFields == nil {
		return []types.RemoteFieldSnapshot{}, nil
	}
	return out.CustomFields, nil
}

func (c *Client) CreateCustomField(ctx context.Context, locationID string, payload types.CreateFieldPayload) (types.RemoteFieldSnapshot, error) {
	var out struct {
		CustomField types.RemoteFieldSnapshot `json:"customField"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/locations/"+url.PathEscape(locationID)+"/customFields", payload, &out); err != nil {
		return types.RemoteFieldSnapshot{}, err
	}
	return out.CustomField, nil
}

// do sends one request. The returned status is 0 when no response arrived.
func (c *Client) do(ctx context.Context, method string, path string, body any, out any) (int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, err
		}
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Version", c.version)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return resp.StatusCode, httperr.NewUpstream(errCRMRequestFailed, resp.StatusCode, readHTTPError(resp))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("crm: decode %s %s: %w", method, path, err)
	}
	return resp.StatusCode, nil
}

func readHTTPError(resp *http.Response) error {
	const maxBody = 4096
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Message:    string(b),
	}
}
