package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

type EventsClient struct {
	httpClient *HttpClient
}

func NewEventsClient(baseUrl string) *EventsClient {
	return &EventsClient{
		httpClient: NewHttpClient(baseUrl),
	}
}

type subjectVersion struct {
	SubjectID string `json:"subject_id"`
	Version   int64  `json:"version"`
}

// SubjectVersion returns the last event version the service assigned to subjectID.
func (c *EventsClient) SubjectVersion(ctx context.Context, subjectID string) (int64, error) {
	resp, err := c.httpClient.GET(ctx, "/api/v1/events/subjects/"+url.PathEscape(subjectID)+"/version")
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("subject version lookup failed: %s", GetErrorMessage(resp))
	}
	out, err := decodeData[subjectVersion](resp)
	if err != nil {
		return 0, err
	}
	return out.Version, nil
}
