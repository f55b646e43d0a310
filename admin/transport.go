// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/xmidt-org/sirihub/coordinator"
	"github.com/xmidt-org/sirihub/entity"
)

// request URL path keys
const (
	keyVarKey     = "key"
	datasetVarKey = "dataset"
	idVarKey      = "id"
	kindVarKey    = "kind"
)

// ErrorHeaderKey carries the error message of a failed request.
const ErrorHeaderKey = "X-Sirihub-Error"

func pathVar(r *http.Request, name string) (string, error) {
	v, ok := mux.Vars(r)[name]
	if !ok || v == "" {
		return "", badRequest(fmt.Errorf("{%s} URL path parameter missing", name))
	}
	return v, nil
}

func decodeNothing(context.Context, *http.Request) (interface{}, error) {
	return nil, nil
}

func decodeLeaseRequest(_ context.Context, r *http.Request) (interface{}, error) {
	key, err := pathVar(r, keyVarKey)
	if err != nil {
		return nil, err
	}
	return &leaseRequest{key: key}, nil
}

func decodeDatasetRequest(_ context.Context, r *http.Request) (interface{}, error) {
	dataset, err := pathVar(r, datasetVarKey)
	if err != nil {
		return nil, err
	}
	return &datasetRequest{dataset: dataset}, nil
}

func decodeSubscriptionRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := pathVar(r, idVarKey)
	if err != nil {
		return nil, err
	}
	return &subscriptionRequest{id: id}, nil
}

func decodeSnapshotRequest(_ context.Context, r *http.Request) (interface{}, error) {
	kind, err := pathVar(r, kindVarKey)
	if err != nil {
		return nil, err
	}
	return &snapshotRequest{kind: kind, dataset: r.URL.Query().Get("dataset")}, nil
}

func encodeJSON(ctx context.Context, rw http.ResponseWriter, response interface{}) error {
	return kithttp.EncodeJSONResponse(ctx, rw, response)
}

func encodeNoContent(_ context.Context, rw http.ResponseWriter, _ interface{}) error {
	rw.WriteHeader(http.StatusNoContent)
	return nil
}

func statusCode(err error) int {
	var sc kithttp.StatusCoder
	switch {
	case errors.As(err, &sc):
		return sc.StatusCode()
	case errors.Is(err, coordinator.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, coordinator.ErrEmptyLockKey), errors.Is(err, entity.ErrEmptyDataset):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func encodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set(ErrorHeaderKey, err.Error())
	var headerer kithttp.Headerer
	if errors.As(err, &headerer) {
		for k, values := range headerer.Headers() {
			for _, v := range values {
				w.Header().Add(k, v)
			}
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode(err))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
