package betfair

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/domain"
	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/infra"
)

const (
	jsonRPCVersion = "2.0"

	methodPlaceOrders         = "SportsAPING/v1.0/placeOrders"
	methodListMarketCatalogue = "SportsAPING/v1.0/listMarketCatalogue"
	methodListClearedOrders   = "SportsAPING/v1.0/listClearedOrders"

	// Bounded retry for transient RPC failures: 3 total attempts,
	// exponential backoff starting at 100ms.
	maxAttempts  = 3
	retryBase    = 100 * time.Millisecond
	retryMax     = 5 * time.Second
	callTimeout  = 10 * time.Second
	loginTimeout = 15 * time.Second
)

// Client is the exchange JSON-RPC client (boundary layer). All retry
// state is local to a single call; concurrent submissions share nothing
// but the HTTP transport.
type Client struct {
	rpcURL       string
	loginURL     string
	keepAliveURL string
	appKey       string

	mu      sync.RWMutex
	session string

	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new exchange API client from configuration.
func NewClient(cfg *infra.Config) *Client {
	bf := cfg.API.Betfair
	return &Client{
		rpcURL:       bf.RPCURL,
		loginURL:     bf.LoginURL,
		keepAliveURL: bf.KeepAliveURL,
		appKey:       bf.AppKey,
		session:      bf.SessionToken,
		httpClient: &http.Client{
			Timeout: callTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		logger: slog.Default().With("module", "betfair_client"),
	}
}

// SetSession installs a new session token, e.g. after login.
func (c *Client) SetSession(token string) {
	c.mu.Lock()
	c.session = token
	c.mu.Unlock()
}

// Session returns the current session token.
func (c *Client) Session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type limitOrder struct {
	Size            string `json:"size"`
	Price           string `json:"price"`
	PersistenceType string `json:"persistenceType"`
}

type placeInstruction struct {
	SelectionID int64      `json:"selectionId"`
	Side        string     `json:"side"`
	OrderType   string     `json:"orderType"`
	LimitOrder  limitOrder `json:"limitOrder"`
}

type placeOrdersParams struct {
	MarketID     string             `json:"marketId"`
	Instructions []placeInstruction `json:"instructions"`
	CustomerRef  string             `json:"customerRef,omitempty"`
}

// PlaceLimitOrder submits exactly one limit instruction and returns the
// raw placement report. Implements domain.OrderPlacer.
func (c *Client) PlaceLimitOrder(ctx context.Context, marketID string, intent domain.OrderIntent, size decimal.Decimal, persistence string) (json.RawMessage, error) {
	params := placeOrdersParams{
		MarketID: marketID,
		Instructions: []placeInstruction{{
			SelectionID: intent.SelectionID,
			Side:        string(intent.Side),
			OrderType:   domain.OrderTypeLimit,
			LimitOrder: limitOrder{
				Size:            size.String(),
				Price:           decimal.NewFromFloat(intent.Price).Round(2).String(),
				PersistenceType: persistence,
			},
		}},
		CustomerRef: uuid.NewString(),
	}

	result, err := c.call(ctx, methodPlaceOrders, params)
	if err != nil {
		infra.GlobalMetrics.RecordOrderFailed()
		return nil, err
	}

	infra.GlobalMetrics.RecordOrderPlaced()
	c.logger.Info("order placed",
		slog.String("market_id", marketID),
		slog.Int64("selection_id", intent.SelectionID),
		slog.String("side", string(intent.Side)),
		slog.Float64("price", intent.Price),
	)
	return result, nil
}

// catalogueFilter is the subset of the market filter the catalogue proxy
// exposes.
type catalogueFilter struct {
	TextQuery    string   `json:"textQuery,omitempty"`
	EventTypeIDs []string `json:"eventTypeIds,omitempty"`
}

type listMarketCatalogueParams struct {
	Filter           catalogueFilter `json:"filter"`
	MarketProjection []string        `json:"marketProjection"`
	MaxResults       int             `json:"maxResults"`
}

// ListMarketCatalogue proxies the catalogue listing for the control
// surface. eventTypeID may be empty.
func (c *Client) ListMarketCatalogue(ctx context.Context, textQuery, eventTypeID string, maxResults int) (json.RawMessage, error) {
	if maxResults <= 0 {
		maxResults = 25
	}
	filter := catalogueFilter{TextQuery: textQuery}
	if eventTypeID != "" {
		filter.EventTypeIDs = []string{eventTypeID}
	}
	return c.call(ctx, methodListMarketCatalogue, listMarketCatalogueParams{
		Filter:           filter,
		MarketProjection: []string{"EVENT", "MARKET_START_TIME", "RUNNER_DESCRIPTION"},
		MaxResults:       maxResults,
	})
}

type listClearedOrdersParams struct {
	BetStatus   string `json:"betStatus"`
	FromRecord  int    `json:"fromRecord"`
	RecordCount int    `json:"recordCount"`
}

// ListClearedOrders fetches a page of the settled-order summary.
func (c *Client) ListClearedOrders(ctx context.Context, fromRecord, recordCount int) (json.RawMessage, error) {
	if recordCount <= 0 {
		recordCount = 50
	}
	return c.call(ctx, methodListClearedOrders, listClearedOrdersParams{
		BetStatus:   "SETTLED",
		FromRecord:  fromRecord,
		RecordCount: recordCount,
	})
}

// call performs one JSON-RPC request with bounded retry. Retries only
// when there is no response at all (network failure) or the response
// status is a server error or rate limit; never on other client errors.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	session := c.Session()
	if session == "" {
		return nil, domain.ErrNoSession
	}

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := infra.CalculateBackoff(attempt-1, retryBase, retryMax)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, retriable, err := c.doCall(ctx, session, reqBody)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retriable {
			return nil, err
		}
		c.logger.Warn("rpc call failed, retrying",
			slog.String("method", method),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
	}
	return nil, lastErr
}

func (c *Client) doCall(ctx context.Context, session string, body []byte) (json.RawMessage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Application", c.appKey)
	req.Header.Set("X-Authentication", session)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, domain.NewNetworkError("rpc", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, domain.NewNetworkError("rpc", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to envelope parsing
	case resp.StatusCode >= http.StatusInternalServerError,
		resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, domain.NewNetworkError("rpc",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)))
	default:
		return nil, false, domain.NewFatalNetworkError("rpc",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)))
	}

	var envelope rpcResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, false, fmt.Errorf("malformed rpc response: %w", err)
	}
	if envelope.Error != nil {
		return nil, false, &domain.APIError{
			Code:    strconv.Itoa(envelope.Error.Code),
			Message: envelope.Error.Message,
		}
	}
	return envelope.Result, false, nil
}

type loginResponse struct {
	Token   string `json:"token"`
	Product string `json:"product"`
	Status  string `json:"status"`
	Error   string `json:"error"`
}

// Login exchanges credentials for a session token via the identity SSO
// endpoint and installs the token on this client.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	if c.loginURL == "" {
		return "", fmt.Errorf("login URL not configured")
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Application", c.appKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.NewNetworkError("login", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed: status %d", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.Unmarshal(respBody, &lr); err != nil {
		return "", fmt.Errorf("malformed login response: %w", err)
	}
	if lr.Status != "SUCCESS" || lr.Token == "" {
		return "", &domain.APIError{Code: lr.Status, Message: lr.Error}
	}

	c.SetSession(lr.Token)
	c.logger.Info("session established", slog.String("product", lr.Product))
	return lr.Token, nil
}

type keepAliveResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// KeepAlive extends the current session's lifetime.
func (c *Client) KeepAlive(ctx context.Context) error {
	if c.keepAliveURL == "" {
		return nil
	}
	session := c.Session()
	if session == "" {
		return domain.ErrNoSession
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.keepAliveURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Application", c.appKey)
	req.Header.Set("X-Authentication", session)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewNetworkError("keepalive", err)
	}
	defer resp.Body.Close()

	var kr keepAliveResponse
	if err := json.NewDecoder(resp.Body).Decode(&kr); err != nil {
		return fmt.Errorf("malformed keep-alive response: %w", err)
	}
	if kr.Status != "SUCCESS" {
		return &domain.APIError{Code: kr.Status, Message: kr.Error}
	}
	return nil
}
