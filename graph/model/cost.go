package model

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ModelPricing defines input and output token costs in USD per 1M tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// defaultModelPricing covers the models the service is configured with.
// Unknown models are still counted, at zero cost.
var defaultModelPricing = map[string]ModelPricing{
	"gpt-4o":                   {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":              {InputPer1M: 0.15, OutputPer1M: 0.60},
	"claude-3-5-haiku-latest":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-5-sonnet-latest": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-sonnet-4-20250514": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"gemini-1.5-flash":         {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-1.5-pro":           {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-2.0-flash":         {InputPer1M: 0.10, OutputPer1M: 0.40},
}

// CostMeter accumulates token usage and cost per model and exports both as
// Prometheus counters:
//
//   - csflow_llm_tokens_total{model, direction}: direction is input or output
//   - csflow_llm_cost_usd_total{model}
//
// Thread-safe: all methods may be called concurrently.
type CostMeter struct {
	mu           sync.RWMutex
	pricing      map[string]ModelPricing
	modelCosts   map[string]float64
	inputTokens  int64
	outputTokens int64

	tokens *prometheus.CounterVec
	cost   *prometheus.CounterVec
}

// NewCostMeter registers the cost counters with registry
// (prometheus.DefaultRegisterer when nil).
func NewCostMeter(registry prometheus.Registerer) *CostMeter {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for k, v := range defaultModelPricing {
		pricing[k] = v
	}

	return &CostMeter{
		pricing:    pricing,
		modelCosts: make(map[string]float64),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csflow",
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by chat model calls",
		}, []string{"model", "direction"}),
		cost: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csflow",
			Name:      "llm_cost_usd_total",
			Help:      "Estimated chat model cost in USD",
		}, []string{"model"}),
	}
}

// RecordLLMCall records one call and returns its cost in USD.
func (cm *CostMeter) RecordLLMCall(model string, inputTokens, outputTokens int) float64 {
	cm.mu.Lock()
	pricing := cm.pricing[model]
	cost := float64(inputTokens)/1_000_000*pricing.InputPer1M +
		float64(outputTokens)/1_000_000*pricing.OutputPer1M
	cm.modelCosts[model] += cost
	cm.inputTokens += int64(inputTokens)
	cm.outputTokens += int64(outputTokens)
	cm.mu.Unlock()

	cm.tokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	cm.tokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	cm.cost.WithLabelValues(model).Add(cost)
	return cost
}

// SetCustomPricing overrides the price of a model.
func (cm *CostMeter) SetCustomPricing(model string, inputPer1M, outputPer1M float64) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.pricing[model] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}

// GetTotalCost returns the cumulative cost across all models.
func (cm *CostMeter) GetTotalCost() float64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	var total float64
	for _, c := range cm.modelCosts {
		total += c
	}
	return total
}

// GetCostByModel returns a copy of the per-model costs.
func (cm *CostMeter) GetCostByModel() map[string]float64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	costs := make(map[string]float64, len(cm.modelCosts))
	for model, cost := range cm.modelCosts {
		costs[model] = cost
	}
	return costs
}

// GetTokenUsage returns total input and output token counts.
func (cm *CostMeter) GetTokenUsage() (inputTokens, outputTokens int64) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.inputTokens, cm.outputTokens
}

// Metered wraps a ChatModel and records the usage of every successful call.
// fallbackModel names the model when the provider leaves Usage.Model empty.
type Metered struct {
	next          ChatModel
	meter         *CostMeter
	fallbackModel string
}

// NewMetered returns a ChatModel that reports usage to meter.
func NewMetered(next ChatModel, meter *CostMeter, fallbackModel string) *Metered {
	return &Metered{next: next, meter: meter, fallbackModel: fallbackModel}
}

// Chat implements ChatModel.
func (m *Metered) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	out, err := m.next.Chat(ctx, messages, tools)
	if err != nil {
		return out, err
	}
	name := out.Usage.Model
	if name == "" {
		name = m.fallbackModel
	}
	m.meter.RecordLLMCall(name, out.Usage.InputTokens, out.Usage.OutputTokens)
	return out, nil
}
