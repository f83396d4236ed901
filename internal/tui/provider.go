package tui

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// apiProvider polls the daemon's local API for dashboard data.
type apiProvider struct {
	client *resty.Client
}

// NewAPIProvider creates a DataProvider backed by the daemon API at baseURL.
func NewAPIProvider(baseURL string) DataProvider {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(3 * time.Second)

	return &apiProvider{client: client}
}

type apiStatus struct {
	State             string   `json:"state"`
	ReconnectAttempts int      `json:"reconnect_attempts"`
	Queued            int      `json:"queued"`
	Detail            string   `json:"detail"`
	FailureKind       string   `json:"failure_kind"`
	Topics            []string `json:"topics"`
	UIClients         int      `json:"ui_clients"`
}

type apiRecent struct {
	Messages []struct {
		Topic      string    `json:"topic"`
		Payload    string    `json:"payload"`
		Retained   bool      `json:"retained"`
		ReceivedAt time.Time `json:"received_at"`
	} `json:"messages"`
}

type apiAnalytics struct {
	TotalEvents  int64   `json:"total_events"`
	TotalBytes   int64   `json:"total_bytes"`
	EventsPerSec float64 `json:"events_per_sec"`
	UniqueTopics int     `json:"unique_topics"`
	TopTopics    []struct {
		Topic string `json:"topic"`
		Count int64  `json:"count"`
	} `json:"top_topics"`
	ReconnectCount int64     `json:"reconnect_count"`
	StartedAt      time.Time `json:"started_at"`
}

// FetchData polls status, recent messages, and analytics. A partial failure
// surfaces in FetchError while the rest of the data still renders.
func (p *apiProvider) FetchData() DashboardData {
	var data DashboardData

	var status apiStatus
	resp, err := p.client.R().SetResult(&status).Get("/api/status")
	if err != nil {
		data.FetchError = err.Error()
		return data
	}
	if resp.IsError() {
		data.FetchError = fmt.Sprintf("HTTP %d from /api/status", resp.StatusCode())
		return data
	}

	data.State = status.State
	data.Detail = status.Detail
	data.Attempts = status.ReconnectAttempts
	data.Queued = status.Queued
	data.Topics = status.Topics
	data.UIClients = status.UIClients
	if status.FailureKind != "" && data.Detail == "" {
		data.Detail = status.FailureKind
	}

	var recent apiRecent
	if resp, err := p.client.R().SetResult(&recent).Get("/api/messages/recent?limit=50"); err == nil && !resp.IsError() {
		for _, msg := range recent.Messages {
			data.Feed = append(data.Feed, FeedEntry{
				Topic:      msg.Topic,
				Payload:    msg.Payload,
				Retained:   msg.Retained,
				ReceivedAt: msg.ReceivedAt,
			})
		}
	}

	var analytics apiAnalytics
	if resp, err := p.client.R().SetResult(&analytics).Get("/api/analytics"); err == nil && !resp.IsError() {
		data.TotalEvents = analytics.TotalEvents
		data.TotalBytes = analytics.TotalBytes
		data.EventsPerSec = analytics.EventsPerSec
		data.UniqueTopics = analytics.UniqueTopics
		data.ReconnectCount = analytics.ReconnectCount
		data.StartedAt = analytics.StartedAt
		for _, row := range analytics.TopTopics {
			data.TopTopics = append(data.TopTopics, TopicRow{Topic: row.Topic, Count: row.Count})
		}
	}

	return data
}
