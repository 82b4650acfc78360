package client

import (
	"context"
	"net/url"
	"slotkeeper/pkg/model"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type BookingClient struct {
	httpClient *HttpClient
}

func NewBookingClient(baseUrl string) *BookingClient {
	return &BookingClient{
		httpClient: NewHttpClient(baseUrl),
	}
}

func (c *BookingClient) Confirm(ctx context.Context, holdID, idempotencyKey string) (*Response, error) {
	body := map[string]string{"hold_id": holdID}
	headers := map[string]string{IdempotencyKeyHeader: idempotencyKey}
	return c.httpClient.POSTWithHeaders(ctx, "/api/v1/bookings", body, headers)
}

func (c *BookingClient) GetByID(ctx context.Context, id string) (*Response, error) {
	path := "/api/v1/bookings/id/" + url.PathEscape(id)
	return c.httpClient.GET(ctx, path)
}

func (c *BookingClient) Cancel(ctx context.Context, id, reason string) (*Response, error) {
	path := "/api/v1/bookings/id/" + url.PathEscape(id) + "/cancel"
	return c.httpClient.POST(ctx, path, model.CancelBookingRequest{Reason: reason})
}

func (c *BookingClient) RestoreCapacity(ctx context.Context, id string) (*Response, error) {
	path := "/api/v1/bookings/id/" + url.PathEscape(id) + "/restore"
	return c.httpClient.POST(ctx, path, struct{}{})
}

func (c *BookingClient) DecodeBooking(resp *Response) (*model.Booking, error) {
	return decodeData[model.Booking](resp)
}
