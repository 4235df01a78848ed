// Package loki ships log entries to a Loki push endpoint, used as an
// optional sink behind the telemetry logger when LOKI_ENDPOINT is set.
package loki

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

// Entry is a single log line.
type Entry struct {
	Timestamp time.Time
	Line      string
	Labels    map[string]string
}

// Batch groups entries pushed in one request.
type Batch struct {
	Entries []Entry
}

// Client pushes batches to Loki's /loki/api/v1/push API. StaticLabels are
// merged into every entry's label set.
type Client struct {
	Endpoint     string
	HTTP         *http.Client
	StaticLabels map[string]string
}

// New builds a Client with a bounded request timeout.
func New(endpoint string, static map[string]string) *Client {
	return &Client{
		Endpoint:     endpoint,
		HTTP:         &http.Client{Timeout: 5 * time.Second},
		StaticLabels: static,
	}
}

type stream struct {
	Stream string      `json:"stream"`
	Values [][2]string `json:"values"`
}

type pushPayload struct {
	Streams []stream `json:"streams"`
}

// Push groups entries by their resolved label set and sends them gzipped.
func (c *Client) Push(batch Batch) error {
	grouped := map[string][][2]string{}
	for _, e := range batch.Entries {
		labels := map[string]string{}
		for k, v := range c.StaticLabels {
			labels[k] = v
		}
		for k, v := range e.Labels {
			labels[k] = v
		}
		key := formatLabels(labels)
		ts := strconv.FormatInt(e.Timestamp.UTC().UnixNano(), 10)
		grouped[key] = append(grouped[key], [2]string{ts, e.Line})
	}

	payload := pushPayload{Streams: make([]stream, 0, len(grouped))}
	for labels, values := range grouped {
		payload.Streams = append(payload.Streams, stream{Stream: labels, Values: values})
	}

	body, err := sonic.Marshal(payload)
	if err != nil {
		return err
	}
	buf := &bytes.Buffer{}
	gz := gzip.NewWriter(buf)
	if _, err := gz.Write(body); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, c.Endpoint+"/loki/api/v1/push", buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push rejected with status %d", resp.StatusCode)
	}
	return nil
}

// formatLabels renders a label map into Loki's {k="v",...} selector syntax,
// sorted so identical label sets always group into one stream.
func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := "{"
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		out += k + "=" + strconv.Quote(labels[k])
	}
	return out + "}"
}
