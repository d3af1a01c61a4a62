package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteModel calls a TensorFlow-Serving compatible REST endpoint.
type RemoteModel struct {
	client   *resty.Client
	endpoint string
}

// NewRemoteModel creates a client for {baseURL}/v1/models/{name}:predict.
func NewRemoteModel(baseURL, name string, timeout time.Duration) *RemoteModel {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	return &RemoteModel{
		client:   client,
		endpoint: strings.TrimRight(baseURL, "/") + "/v1/models/" + name + ":predict",
	}
}

type servingRequest struct {
	Instances [][][][3]float32 `json:"instances"`
}

type servingResponse struct {
	Predictions [][]float32 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

func (m *RemoteModel) Backend() string {
	return "remote"
}

func (m *RemoteModel) Predict(ctx context.Context, input []float32) ([]float32, error) {
	if len(input) != InputSize*InputSize*3 {
		return nil, fmt.Errorf("unexpected input length %d", len(input))
	}

	instance := make([][][3]float32, InputSize)
	for y := range instance {
		instance[y] = make([][3]float32, InputSize)
		for x := range instance[y] {
			i := (y*InputSize + x) * 3
			instance[y][x] = [3]float32{input[i], input[i+1], input[i+2]}
		}
	}

	var resp servingResponse
	httpResp, err := m.client.R().
		SetContext(ctx).
		SetBody(servingRequest{Instances: [][][][3]float32{instance}}).
		SetResult(&resp).
		SetError(&resp).
		Post(m.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call model server: %w", err)
	}

	if httpResp.IsError() {
		if resp.Error != "" {
			return nil, fmt.Errorf("model server returned HTTP %d: %s", httpResp.StatusCode(), resp.Error)
		}
		return nil, fmt.Errorf("model server returned HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
	}
	if len(resp.Predictions) == 0 {
		return nil, fmt.Errorf("no predictions in model server response")
	}
	return resp.Predictions[0], nil
}

func (m *RemoteModel) Close() error {
	return nil
}
