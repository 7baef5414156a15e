// Package api is the HTTP transport of the client: it implements
// session.Connection over the server's command endpoint and serves chunk
// traffic for file transfers.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/iudanet/kegkeeper/internal/errs"
	"github.com/iudanet/kegkeeper/internal/session"
	"github.com/iudanet/kegkeeper/pkg/api"
)

const (
	commandPath = "/api/v1/cmd/"
	healthPath  = "/api/v1/health"

	defaultTimeout = 30 * time.Second
)

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	*session.AuthState

	httpClient *http.Client
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	baseURL    string
	token      string
	wg         sync.WaitGroup
	mu         sync.RWMutex
	probing    bool
}

var _ session.Connection = (*Client)(nil)

// NewClient создает новый API клиент. До вызова Connect клиент считается
// отключенным.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		AuthState: session.NewAuthState(),
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
	c.OnDisconnected(c.startProbe)
	return c
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Connect checks that the server is reachable and marks the connection
// authenticated.
func (c *Client) Connect(ctx context.Context) error {
	if c.bearer() == "" {
		return errs.NewServerError(api.CodeAuthError, "no access token")
	}
	if err := c.Health(ctx); err != nil {
		return err
	}
	c.SetAuthenticated()
	return nil
}

// Close stops background reconnect attempts.
func (c *Client) Close() {
	c.mu.Lock()
	c.cancel()
	c.mu.Unlock()
	c.wg.Wait()
}

// Health проверяет доступность сервера
func (c *Client) Health(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, c.baseURL+healthPath, nil, nil)
}

// Send выполняет команду сервера
func (c *Client) Send(ctx context.Context, command string, payload, resp any) error {
	if err := c.doRequest(ctx, http.MethodPost, c.baseURL+commandPath+command, payload, resp); err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}

// SendChunk uploads one encrypted chunk.
func (c *Client) SendChunk(ctx context.Context, req api.ChunkUploadRequest) error {
	return c.Send(ctx, api.CmdFileChunkUpload, req, nil)
}

// FetchRange downloads bytes [start, end) of a file's encrypted blob.
func (c *Client) FetchRange(ctx context.Context, fileID string, start, end int64) ([]byte, error) {
	var resp api.FileDownloadURLResponse
	if err := c.Send(ctx, api.CmdFileDownloadURL, api.FileDownloadURLRequest{FileID: fileID}, &resp); err != nil {
		return nil, err
	}

	u, err := c.resolve(resp.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set(api.QueryRangeStart, strconv.FormatInt(start, 10))
	q.Set(api.QueryRangeEnd, strconv.FormatInt(end, 10))
	u.RawQuery = q.Encode()

	var data []byte
	if err := c.doRequest(ctx, http.MethodGet, u.String(), nil, &data); err != nil {
		return nil, fmt.Errorf("failed to fetch %s [%d,%d): %w", fileID, start, end, err)
	}
	return data, nil
}

// resolve accepts both absolute URLs and paths relative to the server.
func (c *Client) resolve(raw string) (*url.URL, error) {
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, errs.NewServerError(api.CodeMalformedRequest, "invalid download url")
	}
	return base.ResolveReference(ref), nil
}

// doRequest выполняет HTTP запрос. result может быть *[]byte для сырого
// ответа или указателем на структуру для JSON.
func (c *Client) doRequest(ctx context.Context, method, target string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.SetDisconnected()
		return fmt.Errorf("%w: %w", errs.ErrDisconnected, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %w", errs.ErrDisconnected, err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, respBody)
	}

	switch out := result.(type) {
	case nil:
	case *[]byte:
		*out = respBody
	default:
		if err := json.Unmarshal(respBody, result); err != nil {
			return errs.NewServerError(api.CodeMalformedRequest, "failed to decode response: "+err.Error())
		}
	}
	return nil
}

// decodeError turns a non-2xx response into a *errs.ServerError.
func decodeError(status int, body []byte) error {
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Code != 0 {
		msg := errResp.Error
		if errResp.Message != "" {
			msg += ": " + errResp.Message
		}
		return errs.NewServerError(errResp.Code, msg)
	}

	code := api.CodeGeneric
	switch {
	case status == http.StatusUnauthorized:
		code = api.CodeAuthError
	case status == http.StatusForbidden:
		code = api.CodeAccessForbidden
	case status == http.StatusNotFound:
		code = api.CodeNotFound
	case status == http.StatusConflict:
		code = api.CodeVersionConflict
	case status == http.StatusRequestEntityTooLarge:
		code = api.CodeQuotaExceeded
	case status >= http.StatusInternalServerError:
		code = api.CodeServerError
	}
	return errs.NewServerError(code, fmt.Sprintf("request failed with status %d: %s", status, strings.TrimSpace(string(body))))
}

// startProbe polls the health endpoint after a disconnect until the server
// answers again.
func (c *Client) startProbe() {
	c.mu.Lock()
	if c.probing || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.probing = true
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()

		b := goretry.NewExponential(200 * time.Millisecond)
		b = goretry.WithCappedDuration(10*time.Second, b)
		err := goretry.Do(c.ctx, b, func(ctx context.Context) error {
			if err := c.Health(ctx); err != nil {
				if errors.Is(err, errs.ErrDisconnected) || errs.Retryable(err) {
					return goretry.RetryableError(err)
				}
				return err
			}
			return nil
		})

		c.mu.Lock()
		c.probing = false
		c.mu.Unlock()

		if err != nil {
			c.logger.Debug("reconnect stopped", "error", err)
			return
		}
		c.logger.Info("connection restored")
		c.SetAuthenticated()
	}()
}
