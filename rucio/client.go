package rucio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
	"keepersecurity.com/iam-sync/reconcile"
)

const (
	headerAuthToken      = "X-Rucio-Auth-Token"
	headerAccount        = "X-Rucio-Account"
	headerUsername       = "X-Rucio-Username"
	headerPassword       = "X-Rucio-Password"
	headerExceptionClass = "ExceptionClass"
	headerExceptionMsg   = "ExceptionMessage"
)

type EndpointParameters struct {
	Url               string
	Account           string
	Username          string
	Password          string
	Token             string
	RequestsPerSecond float64
	HttpClient        *http.Client
}

// Error is a failed Rucio REST call.
type Error struct {
	Method         string
	Path           string
	StatusCode     int
	ExceptionClass string
	Message        string
}

func (e *Error) Error() string {
	if len(e.Message) > 0 {
		return fmt.Sprintf("%s Rucio \"%s\" error: %s", e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("%s Rucio \"%s\" error: Status code %d", e.Method, e.Path, e.StatusCode)
}

func (e *Error) Is(target error) bool {
	switch target {
	case reconcile.ErrAccountNotFound:
		return e.ExceptionClass == "AccountNotFound"
	case reconcile.ErrInvalidName:
		return e.ExceptionClass == "InvalidObject"
	}
	return false
}

// Client is the Rucio account directory.
type Client struct {
	baseUrl string
	params  EndpointParameters
	client  *http.Client
	limiter *rate.Limiter
	tokenMu sync.Mutex
	token   string
}

func NewClient(params EndpointParameters) *Client {
	var c = &Client{
		baseUrl: params.Url,
		params:  params,
		client:  params.HttpClient,
		token:   params.Token,
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	if params.RequestsPerSecond > 0 {
		var burst = int(params.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(params.RequestsPerSecond), burst)
	}
	return c
}

func (c *Client) composeUrl(trailingSlash bool, segments ...string) (result *url.URL, err error) {
	var uri *url.URL
	if uri, err = url.Parse(c.baseUrl); err != nil {
		return
	}
	var escaped = make([]string, 0, len(segments)+1)
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(segment))
	}
	if trailingSlash {
		escaped = append(escaped, "/")
	}
	result = uri.JoinPath(escaped...)
	return
}

func (c *Client) authenticate(ctx context.Context) (token string, err error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if len(c.token) > 0 {
		token = c.token
		return
	}
	if len(c.params.Username) == 0 {
		err = errors.New("rucio: no auth token and no username/password configured")
		return
	}
	var uri *url.URL
	if uri, err = c.composeUrl(false, "auth", "userpass"); err != nil {
		return
	}
	var rq *http.Request
	if rq, err = http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil); err != nil {
		return
	}
	rq.Header.Set(headerAccount, c.params.Account)
	rq.Header.Set(headerUsername, c.params.Username)
	rq.Header.Set(headerPassword, c.params.Password)

	var rs *http.Response
	if rs, err = c.client.Do(rq); err != nil {
		return
	}
	defer func() { _ = rs.Body.Close() }()
	_, _ = io.Copy(io.Discard, rs.Body)
	if rs.StatusCode >= 300 {
		err = c.responseError(rq, rs, nil)
		return
	}
	token = rs.Header.Get(headerAuthToken)
	if len(token) == 0 {
		err = errors.New("rucio: authentication response does not carry a token")
		return
	}
	c.token = token
	return
}

func (c *Client) resetToken(stale string) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token == stale && len(c.params.Username) > 0 {
		c.token = ""
	}
}

func (c *Client) responseError(rq *http.Request, rs *http.Response, body []byte) error {
	var rucioUrl = rq.URL.String()
	if strings.HasPrefix(rucioUrl, c.baseUrl) {
		rucioUrl = strings.Trim(rucioUrl[len(c.baseUrl):], "/")
	}
	var e = &Error{
		Method:         rq.Method,
		Path:           rucioUrl,
		StatusCode:     rs.StatusCode,
		ExceptionClass: rs.Header.Get(headerExceptionClass),
		Message:        rs.Header.Get(headerExceptionMsg),
	}
	if len(body) > 0 {
		var jo map[string]any
		if json.Unmarshal(body, &jo) == nil {
			if v, ok := reconcile.ToString(jo["ExceptionClass"]); ok && len(e.ExceptionClass) == 0 {
				e.ExceptionClass = v
			}
			if v, ok := reconcile.ToString(jo["ExceptionMessage"]); ok && len(e.Message) == 0 {
				e.Message = v
			}
		}
		if len(e.Message) == 0 {
			e.Message = string(body)
		}
	}
	return e
}

// execute sends the request and returns the response body. A rejected token is renewed once
// when username and password are configured.
func (c *Client) execute(ctx context.Context, method string, uri *url.URL, payload any) (body []byte, err error) {
	var data []byte
	if payload != nil {
		if data, err = json.Marshal(payload); err != nil {
			return
		}
	}
	for attempt := 0; attempt < 2; attempt++ {
		if c.limiter != nil {
			if err = c.limiter.Wait(ctx); err != nil {
				return
			}
		}
		var token string
		if token, err = c.authenticate(ctx); err != nil {
			return
		}
		var rq *http.Request
		if rq, err = http.NewRequestWithContext(ctx, method, uri.String(), bytes.NewReader(data)); err != nil {
			return
		}
		rq.Header.Set(headerAuthToken, token)
		if payload != nil {
			rq.Header.Set("Content-Type", "application/json")
		}

		var rs *http.Response
		if rs, err = c.client.Do(rq); err != nil {
			return
		}
		body, err = io.ReadAll(rs.Body)
		_ = rs.Body.Close()
		if err != nil {
			return
		}
		if rs.StatusCode == http.StatusUnauthorized && attempt == 0 && len(c.params.Username) > 0 {
			c.resetToken(token)
			continue
		}
		if rs.StatusCode >= 300 {
			err = c.responseError(rq, rs, body)
		}
		return
	}
	return
}

// decodeStream decodes a newline delimited JSON response.
func decodeStream(body []byte, cb func(json.RawMessage) error) (err error) {
	var scanner = bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var line = bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err = cb(json.RawMessage(line)); err != nil {
			return
		}
	}
	err = scanner.Err()
	return
}
