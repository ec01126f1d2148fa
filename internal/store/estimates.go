package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/types"
)

const DefaultEstimatesTTL = 24 * time.Hour

// Estimates reads and writes analyst estimates as JSON under
// estimates:{SYMBOL}:Q{q}:FY{fy}.
type Estimates struct {
	client *redis.Client
	ttl    time.Duration
}

func NewEstimates(client *redis.Client, ttl time.Duration) *Estimates {
	if ttl <= 0 {
		ttl = DefaultEstimatesTTL
	}
	return &Estimates{client: client, ttl: ttl}
}

func EstimateKey(symbol string, quarter, fiscalYear int) string {
	return fmt.Sprintf("estimates:%s:Q%d:FY%d", strings.ToUpper(symbol), quarter, fiscalYear)
}

func (e *Estimates) GetEstimate(ctx context.Context, symbol string, quarter, fiscalYear int) (*types.Estimate, error) {
	data, err := e.client.Get(ctx, EstimateKey(symbol, quarter, fiscalYear)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, rerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read estimate: %w", err)
	}
	var est types.Estimate
	if err := json.Unmarshal(data, &est); err != nil {
		return nil, fmt.Errorf("failed to decode estimate for %s: %w", symbol, err)
	}
	return &est, nil
}

func (e *Estimates) Put(ctx context.Context, est types.Estimate) error {
	est.Symbol = strings.ToUpper(est.Symbol)
	data, err := json.Marshal(est)
	if err != nil {
		return fmt.Errorf("failed to encode estimate: %w", err)
	}
	return e.client.Set(ctx, EstimateKey(est.Symbol, est.Quarter, est.FiscalYear), data, e.ttl).Err()
}

// PutAll writes every estimate in one pipeline and returns how many were
// stored.
func (e *Estimates) PutAll(ctx context.Context, ests []types.Estimate) (int, error) {
	pipe := e.client.Pipeline()
	for _, est := range ests {
		est.Symbol = strings.ToUpper(est.Symbol)
		data, err := json.Marshal(est)
		if err != nil {
			return 0, fmt.Errorf("failed to encode estimate: %w", err)
		}
		pipe.Set(ctx, EstimateKey(est.Symbol, est.Quarter, est.FiscalYear), data, e.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to store estimates: %w", err)
	}
	return len(ests), nil
}

type seedFile struct {
	Estimates []seedEstimate `yaml:"estimates"`
}

type seedEstimate struct {
	Symbol     string   `yaml:"symbol"`
	Quarter    int      `yaml:"quarter"`
	FiscalYear int      `yaml:"fiscal_year"`
	Revenue    *float64 `yaml:"revenue_est"`
	Profit     *float64 `yaml:"profit_est"`
	EPS        *float64 `yaml:"eps_est"`
	Confidence float64  `yaml:"confidence_score"`
}

// LoadEstimatesFile reads a YAML seed file of the form
//
//	estimates:
//	  - symbol: RELIANCE
//	    quarter: 3
//	    fiscal_year: 2025
//	    revenue_est: 239000
func LoadEstimatesFile(path string) ([]types.Estimate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read estimates file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse estimates file %s: %w", path, err)
	}

	out := make([]types.Estimate, 0, len(f.Estimates))
	for i, s := range f.Estimates {
		if s.Symbol == "" || s.Quarter < 1 || s.Quarter > 4 || s.FiscalYear == 0 {
			return nil, fmt.Errorf("%w: estimate %d needs symbol, quarter 1-4 and fiscal_year", rerrors.ErrConfigInvalid, i)
		}
		out = append(out, types.Estimate{
			Symbol:          strings.ToUpper(s.Symbol),
			Quarter:         s.Quarter,
			FiscalYear:      s.FiscalYear,
			RevenueEst:      optional(s.Revenue),
			ProfitEst:       optional(s.Profit),
			EPSEst:          optional(s.EPS),
			ConfidenceScore: s.Confidence,
		})
	}
	return out, nil
}

func optional(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v))
}
