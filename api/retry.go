package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/bassamadnan/tmpmail/apperror"
	"github.com/bassamadnan/tmpmail/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxResponseBytes = 10 << 20

var transientStatuses = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// failure describes one unsuccessful attempt.
type failure struct {
	status    int // 0 when no response was received
	serverMsg string
	err       error
	canceled  bool // the caller's context ended
}

func (f *failure) transient() bool {
	if f.canceled {
		return false
	}
	if f.status == 0 {
		return true
	}
	return transientStatuses[f.status]
}

func (f *failure) classify() *apperror.Error {
	var appErr *apperror.Error
	switch {
	case f.canceled && errors.Is(f.err, context.DeadlineExceeded):
		appErr = apperror.New(apperror.KindTimeout, "", f.err)
	case f.canceled:
		appErr = apperror.New(apperror.KindNetwork, "Request was cancelled.", f.err)
	case f.status == 0 && isTimeout(f.err):
		appErr = apperror.New(apperror.KindTimeout, "", f.err)
	case f.status == 0:
		appErr = apperror.New(apperror.KindNetwork, "", f.err)
	default:
		appErr = apperror.New(kindForStatus(f.status), f.serverMsg, f.err)
		if f.status >= 200 && f.status < 300 && f.serverMsg == "" {
			appErr.Message = "Unexpected response from server."
		}
	}
	appErr.Status = f.status
	return appErr
}

func kindForStatus(status int) apperror.Kind {
	switch status {
	case http.StatusBadRequest:
		return apperror.KindValidation
	case http.StatusNotFound:
		return apperror.KindNotFound
	case http.StatusTooManyRequests:
		return apperror.KindRateLimit
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return apperror.KindService
	default:
		return apperror.KindUnknown
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// do performs one logical call: up to c.attempts attempts separated by a fixed
// delay, retrying only transient failures.
func (c *Client) do(ctx context.Context, op, method string, segments []string, query url.Values, body, out any) error {
	start := time.Now()
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return apperror.New(apperror.KindUnknown, "", fmt.Errorf("encode %s request: %w", op, err))
		}
	}

	for attempt := 1; ; attempt++ {
		f := c.attempt(ctx, method, c.endpoint(segments, query), payload, out)
		if f == nil {
			metrics.RecordAPIRequest(op, "success", time.Since(start))
			return nil
		}
		if attempt >= c.attempts || !f.transient() {
			appErr := f.classify()
			metrics.RecordAPIRequest(op, appErr.Kind.String(), time.Since(start))
			c.logger.Warn("backend call failed",
				zap.String("operation", op),
				zap.Int("attempts", attempt),
				zap.Int("status", f.status),
				zap.Stringer("kind", appErr.Kind),
				zap.Error(f.err))
			return appErr
		}

		metrics.IncrementAPIRetry(op)
		c.logger.Info("retrying backend call",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Int("status", f.status),
			zap.Duration("delay", c.delay),
			zap.Error(f.err))
		if err := c.wait(ctx); err != nil {
			appErr := (&failure{err: err, canceled: true}).classify()
			metrics.RecordAPIRequest(op, appErr.Kind.String(), time.Since(start))
			return appErr
		}
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) attempt(ctx context.Context, method, target string, payload []byte, out any) *failure {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return &failure{status: -1, err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	c.logger.Debug("backend request", zap.String("method", method), zap.String("url", target))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &failure{err: err, canceled: ctx.Err() != nil}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &failure{err: fmt.Errorf("read response: %w", err), canceled: ctx.Err() != nil}
	}
	c.logger.Debug("backend response", zap.String("url", target), zap.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		return &failure{
			status:    resp.StatusCode,
			serverMsg: eb.text(),
			err:       fmt.Errorf("backend returned status %d", resp.StatusCode),
		}
	}
	if err := decodeInto(data, out); err != nil {
		return &failure{status: resp.StatusCode, err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
