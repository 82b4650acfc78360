package client

import (
	"context"
	"net/url"
	"slotkeeper/pkg/model"
	"strings"
	"time"
)

type UnitClient struct {
	httpClient *HttpClient
}

func NewUnitClient(baseUrl string) *UnitClient {
	return &UnitClient{
		httpClient: NewHttpClient(baseUrl),
	}
}

func (c *UnitClient) Create(ctx context.Context, unit model.ResourceUnit) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/units", unit)
}

func (c *UnitClient) Generate(ctx context.Context, req model.GenerateUnitsRequest) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/units/generate", req)
}

func (c *UnitClient) GetByID(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/units/id/"+url.PathEscape(id))
}

func (c *UnitClient) Alternatives(ctx context.Context, resourceID string, start, end time.Time, exclude []string) (*Response, error) {
	q := url.Values{}
	q.Set("resource_id", resourceID)
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	if len(exclude) > 0 {
		q.Set("exclude", strings.Join(exclude, ","))
	}
	return c.httpClient.GET(ctx, "/api/v1/alternatives?"+q.Encode())
}

func (c *UnitClient) DecodeUnit(resp *Response) (*model.ResourceUnit, error) {
	return decodeData[model.ResourceUnit](resp)
}

func (c *UnitClient) DecodeUnits(resp *Response) ([]model.ResourceUnit, error) {
	units, err := decodeData[[]model.ResourceUnit](resp)
	if err != nil {
		return nil, err
	}
	return *units, nil
}
