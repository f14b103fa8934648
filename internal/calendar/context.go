package calendar

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// contextWithClient makes oauth2 use client for token requests.
func contextWithClient(ctx context.Context, client *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}
