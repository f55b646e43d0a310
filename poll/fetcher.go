// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package poll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/xmidt-org/sirihub/model"
	"github.com/xmidt-org/sirihub/subscription"
)

// Request headers sent to producers.
const (
	SubscriptionIDHeader = "X-Subscription-Id"
	RequestorHeader      = "X-Requestor-Ref"
)

var (
	ErrNoFetchEndpoint    = errors.New("subscription has no fetch endpoint")
	errNonSuccessResponse = errors.New("producer responded with a non-success status code")
)

// Fetcher retrieves the current delivery of a fetching subscription. A nil
// delivery means the producer had nothing new.
type Fetcher interface {
	Fetch(ctx context.Context, d subscription.Descriptor) (*model.ServiceDelivery, error)
}

// HTTPFetcher fetches JSON deliveries with a GET on the fetch endpoint.
type HTTPFetcher struct {
	client    kithttp.HTTPClient
	requestor string
}

func NewHTTPFetcher(client kithttp.HTTPClient, requestor string) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client, requestor: requestor}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, d subscription.Descriptor) (*model.ServiceDelivery, error) {
	address, ok := d.Endpoint(subscription.FetchEndpoint)
	if !ok {
		return nil, ErrNoFetchEndpoint
	}
	target, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("fetch endpoint: %w", err)
	}

	e := kithttp.NewClient(
		http.MethodGet,
		target,
		f.encodeRequest,
		decodeDelivery,
		kithttp.SetClient(f.client),
	).Endpoint()

	response, err := e(ctx, d)
	if err != nil {
		return nil, err
	}
	return response.(*model.ServiceDelivery), nil
}

func (f *HTTPFetcher) encodeRequest(_ context.Context, r *http.Request, request interface{}) error {
	d := request.(subscription.Descriptor)
	r.Header.Set("Accept", "application/json")
	r.Header.Set(SubscriptionIDHeader, d.ID)
	if f.requestor != "" {
		r.Header.Set(RequestorHeader, f.requestor)
	}
	q := r.URL.Query()
	q.Set("datasetId", d.DatasetID)
	r.URL.RawQuery = q.Encode()
	return nil
}

func decodeDelivery(_ context.Context, resp *http.Response) (interface{}, error) {
	if resp.StatusCode == http.StatusNoContent {
		return (*model.ServiceDelivery)(nil), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %d", errNonSuccessResponse, resp.StatusCode)
	}
	var d model.ServiceDelivery
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode service delivery: %w", err)
	}
	return &d, nil
}
