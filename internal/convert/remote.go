package convert

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

const (
	endpointDocxToPDF = "docx2pdf"
	endpointPDFToDoc  = "pdf2doc"
	textEntryName     = "table.txt"
)

// Remote wraps the document conversion server. Files are posted as raw
// octet streams with the conversion options in the query string.
type Remote struct {
	baseURL      string
	async        bool
	pollInterval time.Duration
	maxPolls     int
	client       *http.Client
}

type RemoteOption func(*Remote)

func WithAsync(pollInterval time.Duration, maxPolls int) RemoteOption {
	return func(r *Remote) {
		r.async = true
		r.pollInterval = pollInterval
		r.maxPolls = maxPolls
	}
}

func WithHTTPClient(client *http.Client) RemoteOption {
	return func(r *Remote) {
		r.client = client
	}
}

func NewRemote(baseURL string, opts ...RemoteOption) *Remote {
	r := &Remote{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/",
		pollInterval: time.Second,
		maxPolls:     120,
		client:       http.DefaultClient,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type taskResponse struct {
	Data struct {
		Task struct {
			ID string `json:"id"`
		} `json:"task"`
	} `json:"data"`
}

type pollStatus struct {
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

// DocxToPDF renders a word document to pdf bytes.
func (r *Remote) DocxToPDF(ctx context.Context, data []byte) ([]byte, error) {
	query := url.Values{}
	query.Set("table-border", "")
	query.Set("output-format", "pdf")
	return r.call(ctx, endpointDocxToPDF, query, data)
}

// PDFToText extracts the text layer of a pdf. The server answers with a zip
// archive whose table.txt holds one paragraph per line.
func (r *Remote) PDFToText(ctx context.Context, data []byte) (string, error) {
	query := url.Values{}
	query.Set("text", "true")
	query.Set("output-format", "zip")
	query.Set("html", "true")
	archive, err := r.call(ctx, endpointPDFToDoc, query, data)
	if err != nil {
		return "", err
	}
	return readArchiveEntry(archive, textEntryName)
}

func (r *Remote) call(ctx context.Context, endpoint string, query url.Values, data []byte) ([]byte, error) {
	if r.async {
		query.Set("async", "true")
	}
	target := r.baseURL + endpoint + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	_, body, err := r.do(req)
	if err != nil {
		return nil, err
	}
	if !r.async {
		return body, nil
	}
	var task taskResponse
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, fmt.Errorf("decode %s task: %w: %w", endpoint, err, appErr.ErrUpstream)
	}
	if task.Data.Task.ID == "" {
		return nil, fmt.Errorf("%s returned no task id: %w", endpoint, appErr.ErrUpstream)
	}
	return r.poll(ctx, endpoint, task.Data.Task.ID)
}

func (r *Remote) poll(ctx context.Context, endpoint, taskID string) ([]byte, error) {
	target := r.baseURL + endpoint + "?task_id=" + url.QueryEscape(taskID)
	for i := 0; i < r.maxPolls; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		resp, body, err := r.do(req)
		if err != nil {
			return nil, err
		}
		if !taskPending(resp, body) {
			return body, nil
		}
		logutil.GetLogger(ctx).Debug("conversion task pending",
			zap.String("endpoint", endpoint),
			zap.String("task_id", taskID),
			zap.Int("poll", i+1),
		)
		timer := time.NewTimer(r.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("%s task %s still pending after %d polls: %w", endpoint, taskID, r.maxPolls, appErr.ErrUpstream)
}

func taskPending(resp *http.Response, body []byte) bool {
	if resp.Header.Get("x-api-status") == "" {
		return false
	}
	var status pollStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return false
	}
	return status.Error.Code == "running" || status.Error.Code == "waiting"
}

func (r *Remote) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("conversion request: %w: %w", err, appErr.ErrUpstream)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read conversion response: %w: %w", err, appErr.ErrUpstream)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("conversion failed: %s: %s: %w", resp.Status, strings.TrimSpace(string(body)), appErr.ErrUpstream)
	}
	return resp, body, nil
}

func readArchiveEntry(archive []byte, name string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return "", fmt.Errorf("open conversion archive: %w: %w", err, appErr.ErrUpstream)
	}
	for _, f := range zr.File {
		if f.Name != name && !strings.HasSuffix(f.Name, "/"+name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return "", fmt.Errorf("conversion archive has no %s: %w", name, appErr.ErrUpstream)
}
