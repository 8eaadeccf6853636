package webhook

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

const maxRecordedBody = 200

// Outcome classifies one delivery attempt.
type Outcome struct {
	Success        bool
	ResponseStatus *int
	ResponseBody   string
	ErrorCode      string
	ErrorMessage   string
}

// Deliverer POSTs webhook bodies to subscriber endpoints.
type Deliverer struct {
	client *resty.Client
}

// NewDeliverer builds an HTTP deliverer with the configured timeout.
// Redirects are followed.
func NewDeliverer(timeout time.Duration) *Deliverer {
	client := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5)).
		SetHeader("User-Agent", "cotton-matching-webhook/1.0")
	return &Deliverer{client: client}
}

// Deliver performs one POST and classifies the result. Transport failures
// are reported in the outcome, never as an error.
func (d *Deliverer) Deliver(ctx context.Context, delivery *types.WebhookDelivery) Outcome {
	req := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(delivery.Body)
	for k, v := range delivery.RequestHeaders {
		req.SetHeader(k, v)
	}

	resp, err := req.Post(delivery.URL)
	if err != nil {
		return classifyTransportError(err)
	}

	status := resp.StatusCode()
	body := truncate(string(resp.Body()), maxRecordedBody)

	if status >= 200 && status < 300 {
		return Outcome{Success: true, ResponseStatus: &status, ResponseBody: body}
	}
	return Outcome{
		ResponseStatus: &status,
		ResponseBody:   body,
		ErrorCode:      types.DeliveryErrHTTP,
		ErrorMessage:   fmt.Sprintf("HTTP %d: %s", status, body),
	}
}

func classifyTransportError(err error) Outcome {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return Outcome{ErrorCode: types.DeliveryErrTimeout, ErrorMessage: err.Error()}
	case isConnectError(err):
		return Outcome{ErrorCode: types.DeliveryErrConnect, ErrorMessage: err.Error()}
	default:
		return Outcome{ErrorCode: types.DeliveryErrUnknown, ErrorMessage: err.Error()}
	}
}

func isConnectError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
