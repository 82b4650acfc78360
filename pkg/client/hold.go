package client

import (
	"context"
	"net/url"
	"slotkeeper/pkg/model"
)

type HoldClient struct {
	httpClient *HttpClient
}

func NewHoldClient(baseUrl string) *HoldClient {
	return &HoldClient{
		httpClient: NewHttpClient(baseUrl),
	}
}

func (c *HoldClient) Acquire(ctx context.Context, req model.AcquireHoldRequest) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/holds", req)
}

func (c *HoldClient) GetByID(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/holds/id/"+url.PathEscape(id))
}

func (c *HoldClient) Release(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.DELETE(ctx, "/api/v1/holds/id/"+url.PathEscape(id))
}

func (c *HoldClient) DecodeHold(resp *Response) (*model.Hold, error) {
	return decodeData[model.Hold](resp)
}
