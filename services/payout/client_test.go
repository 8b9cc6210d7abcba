package payout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTransferSendsIdempotenceKey(t *testing.T) {
	var got TransferRequest
	var gotKey, gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/transfers", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		gotKey = r.Header.Get(IdempotenceHeader)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"tr_123"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewHTTPClient(Config{
		BaseURL:      srv.URL + "/",
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/oauth/token",
		Timeout:      time.Second,
	})
	receipt, err := c.Transfer(context.Background(), TransferRequest{
		Amount:         9000,
		Currency:       "usd",
		DestinationID:  "acct_1",
		IdempotenceKey: "key-1",
		Reason:         "challenge revenue",
		Notes:          map[string]string{"payment_id": "pay_1"},
	})
	require.NoError(t, err)
	require.Equal(t, "tr_123", receipt.TransferID)
	require.Equal(t, "key-1", gotKey)
	require.Equal(t, "Bearer tok-1", gotAuth)
	require.Equal(t, int64(9000), got.Amount)
	require.Equal(t, "acct_1", got.DestinationID)
	require.Equal(t, "pay_1", got.Notes["payment_id"])
}

func TestTransferDecodesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"code":"invalid_destination","message":"no such account"}}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(Config{BaseURL: srv.URL}).Transfer(context.Background(), TransferRequest{IdempotenceKey: "k"})
	var perr *Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, CodeInvalidDestination, perr.Code)
	require.Equal(t, http.StatusUnprocessableEntity, perr.HTTPStatus)
	require.True(t, perr.Permanent())
	require.Contains(t, err.Error(), "no such account")
}

func TestTransferStatusCodes(t *testing.T) {
	cases := []struct {
		status    int
		code      string
		permanent bool
	}{
		{http.StatusUnauthorized, CodeUnauthorized, true},
		{http.StatusForbidden, CodeForbidden, true},
		{http.StatusTooManyRequests, CodeRateLimited, false},
		{http.StatusServiceUnavailable, CodeServerError, false},
		{http.StatusBadRequest, CodeInvalidRequest, true},
		{http.StatusUnprocessableEntity, CodeInvalidRequest, true},
		{http.StatusNotFound, CodeInvalidDestination, true},
		{http.StatusRequestTimeout, "http_408", false},
		{http.StatusConflict, "http_409", false},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := NewHTTPClient(Config{BaseURL: srv.URL}).Transfer(context.Background(), TransferRequest{})
			var perr *Error
			require.True(t, errors.As(err, &perr))
			require.Equal(t, tc.code, perr.Code)
			require.Equal(t, tc.permanent, perr.Permanent())
		})
	}
}

func TestTransferTimeoutIsTransport(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewHTTPClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}).Transfer(context.Background(), TransferRequest{})
	var perr *Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, CodeTransport, perr.Code)
	require.False(t, perr.Permanent())
}

func TestTransferRejectsReceiptWithoutID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(Config{BaseURL: srv.URL}).Transfer(context.Background(), TransferRequest{})
	var perr *Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, CodeBadResponse, perr.Code)
}
