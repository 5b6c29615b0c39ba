package forecasting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"DemandCast/internal/domain/models"
	"DemandCast/internal/domain/service"
	xhttp "DemandCast/pkg/http"
)

// httpModelBase centralizes client construction and JSON POST handling for
// remote models.
type httpModelBase struct {
	baseURL string
	client  *xhttp.Client
	retries int
}

func newHTTPModelBase(cfg RemoteModelConfig) *httpModelBase {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &httpModelBase{
		baseURL: cfg.URL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		retries: cfg.Retries,
	}
}

// PostJSON posts the given payload to `path` under baseURL and decodes JSON into dest.
func (b *httpModelBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("remote model http client not initialized")
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    b.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry retries transient failures with exponential backoff.
// Client errors other than 429 are permanent.
func (b *httpModelBase) PostJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.retries <= 0 {
		return b.PostJSON(ctx, path, payload, dest)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(b.retries)), ctx)

	return backoff.Retry(func() error {
		err := b.PostJSON(ctx, path, payload, dest)
		var se *xhttp.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// RemoteModel delegates fitting to an external forecasting service.
type RemoteModel struct {
	cfg  RemoteModelConfig
	base *httpModelBase
}

func NewRemoteModel(cfg RemoteModelConfig) *RemoteModel {
	return &RemoteModel{cfg: cfg, base: newHTTPModelBase(cfg)}
}

func (m *RemoteModel) Spec() service.ModelSpec {
	return service.ModelSpec{
		Name:               "remote:" + m.cfg.Name,
		Complexity:         m.cfg.Complexity,
		MinObservations:    m.cfg.MinObservations,
		ShortSeriesCapable: m.cfg.ShortSeriesCapable,
	}
}

type remotePoint struct {
	Index  int       `json:"index"`
	Period time.Time `json:"period"`
	Value  float64   `json:"value"`
}

type remoteReq struct {
	Model        string        `json:"model"`
	Granularity  string        `json:"granularity"`
	SeasonLength int           `json:"season_length"`
	End          int           `json:"end"`
	Steps        int           `json:"steps"`
	Points       []remotePoint `json:"points"`
}

type remoteResp struct {
	Predictions []float64          `json:"predictions"`
	Params      map[string]float64 `json:"params"`
	ResidualStd float64            `json:"residual_std"`
}

func (m *RemoteModel) Fit(ctx context.Context, w models.TrainingWindow) (service.FittedModel, error) {
	req := remoteReq{
		Model:        m.cfg.Name,
		Granularity:  string(w.Granularity),
		SeasonLength: w.SeasonLength,
		End:          w.End,
		Steps:        w.Steps,
		Points:       make([]remotePoint, len(w.Points)),
	}
	for i, p := range w.Points {
		req.Points[i] = remotePoint{Index: p.Index, Period: p.Period, Value: p.Value}
	}
	var resp remoteResp
	if err := m.base.PostJSONWithRetry(ctx, m.cfg.Path, req, &resp); err != nil {
		return nil, fmt.Errorf("remote %s: %w", m.cfg.Name, err)
	}
	if len(resp.Predictions) < w.Steps {
		return nil, fmt.Errorf("remote %s returned %d predictions, need %d", m.cfg.Name, len(resp.Predictions), w.Steps)
	}
	preds := resp.Predictions
	return &fitted{
		end: w.End,
		at: func(i int) float64 {
			k := i - w.End
			if k < 0 || k >= len(preds) {
				return math.NaN()
			}
			return preds[k]
		},
		params:     resp.Params,
		residSD:    resp.ResidualStd,
		complexity: m.cfg.Complexity,
	}, nil
}

var _ service.Model = (*RemoteModel)(nil)
