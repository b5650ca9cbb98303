// Package analytics summarizes a finished session: trade statistics, the
// equity curve and its drawdowns.
package analytics

import (
	"math"
	"sort"
	"time"

	"backtestCore/internal/domain"
	"backtestCore/internal/portfolio"
)

// PerformanceMetrics holds performance metrics for a session
type PerformanceMetrics struct {
	// Trade Metrics
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	WinRate         float64
	TotalProfit     float64
	TotalCommission float64
	GrossProfit     float64
	GrossLoss       float64
	ProfitFactor    float64
	AverageWin      float64
	AverageLoss     float64
	Expectancy      float64
	RiskRewardRatio float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration

	// Equity Metrics
	InitialValue       float64
	FinalValue         float64
	ReturnOnInvestment float64
	MaxDrawdown        float64
	RecoveryFactor     float64
	SharpeRatio        float64 // Per-observation, not annualized
	MonthlyReturns     map[string]float64
	Drawdowns          []Drawdown
	EquityCurve        []EquityPoint
}

// Drawdown represents a drawdown period
type Drawdown struct {
	StartTime  time.Time
	EndTime    time.Time
	StartValue float64
	EndValue   float64
	Depth      float64
	Duration   time.Duration
	Recovered  bool
}

// EquityPoint represents a point on the equity curve
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

// AnalyzePerformance calculates performance metrics from closed trades and
// the recorded NAV series. Without NAV points the equity curve is rebuilt
// from initialValue plus cumulative trade P&L at each close.
func AnalyzePerformance(trades []*domain.Trade, navs []portfolio.SeriesPoint, initialValue float64) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		InitialValue:   initialValue,
		FinalValue:     initialValue,
		MonthlyReturns: make(map[string]float64),
		Drawdowns:      make([]Drawdown, 0),
		EquityCurve:    make([]EquityPoint, 0),
	}

	sorted := append([]*domain.Trade(nil), trades...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CloseTime.Before(sorted[j].CloseTime)
	})

	analyzeTrades(metrics, sorted)

	curve := navs
	if len(curve) == 0 {
		curve = tradeCurve(sorted, initialValue)
	}
	analyzeEquity(metrics, curve)

	if initialValue != 0 {
		metrics.ReturnOnInvestment = (metrics.FinalValue - initialValue) / initialValue
		if metrics.MaxDrawdown > 0 {
			metrics.RecoveryFactor = metrics.TotalProfit / (initialValue * metrics.MaxDrawdown)
		}
	}
	return metrics
}

func analyzeTrades(metrics *PerformanceMetrics, trades []*domain.Trade) {
	var consecutiveWins, consecutiveLosses int
	var totalDuration time.Duration

	for _, trade := range trades {
		metrics.TotalTrades++
		metrics.TotalProfit += trade.PnL
		metrics.TotalCommission += trade.Commission
		totalDuration += trade.Duration()

		if trade.PnL > 0 {
			metrics.WinningTrades++
			metrics.GrossProfit += trade.PnL
			consecutiveWins++
			consecutiveLosses = 0
		} else {
			metrics.LosingTrades++
			metrics.GrossLoss -= trade.PnL
			consecutiveLosses++
			consecutiveWins = 0
		}
		if consecutiveWins > metrics.MaxConsecutiveWins {
			metrics.MaxConsecutiveWins = consecutiveWins
		}
		if consecutiveLosses > metrics.MaxConsecutiveLosses {
			metrics.MaxConsecutiveLosses = consecutiveLosses
		}

		metrics.MonthlyReturns[trade.CloseTime.Format("2006-01")] += trade.PnL
	}

	if metrics.TotalTrades == 0 {
		return
	}
	metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades)
	if metrics.WinningTrades > 0 {
		metrics.AverageWin = metrics.GrossProfit / float64(metrics.WinningTrades)
	}
	if metrics.LosingTrades > 0 {
		metrics.AverageLoss = -metrics.GrossLoss / float64(metrics.LosingTrades)
	}
	if metrics.GrossLoss > 0 {
		metrics.ProfitFactor = metrics.GrossProfit / metrics.GrossLoss
	}
	if metrics.AverageLoss != 0 {
		metrics.RiskRewardRatio = metrics.AverageWin / -metrics.AverageLoss
	}
	metrics.Expectancy = (metrics.WinRate * metrics.AverageWin) + ((1 - metrics.WinRate) * metrics.AverageLoss)
	metrics.AverageTradeDuration = totalDuration / time.Duration(metrics.TotalTrades)
}

func tradeCurve(trades []*domain.Trade, initialValue float64) []portfolio.SeriesPoint {
	if len(trades) == 0 {
		return nil
	}
	start := trades[0].OpenTime
	for _, t := range trades {
		if t.OpenTime.Before(start) {
			start = t.OpenTime
		}
	}
	curve := make([]portfolio.SeriesPoint, 0, len(trades)+1)
	curve = append(curve, portfolio.SeriesPoint{Time: start, Value: initialValue})
	value := initialValue
	for _, t := range trades {
		value += t.PnL
		curve = append(curve, portfolio.SeriesPoint{Time: t.CloseTime, Value: value})
	}
	return curve
}

func analyzeEquity(metrics *PerformanceMetrics, curve []portfolio.SeriesPoint) {
	if len(curve) == 0 {
		return
	}

	peak := curve[0].Value
	var current *Drawdown
	returns := make([]float64, 0, len(curve))

	for i, p := range curve {
		if i > 0 && curve[i-1].Value > 0 {
			returns = append(returns, p.Value/curve[i-1].Value-1)
		}

		depth := 0.0
		if p.Value >= peak {
			peak = p.Value
			if current != nil {
				current.EndTime = p.Time
				current.EndValue = p.Value
				current.Duration = current.EndTime.Sub(current.StartTime)
				current.Recovered = true
				metrics.Drawdowns = append(metrics.Drawdowns, *current)
				current = nil
			}
		} else {
			if peak > 0 {
				depth = (peak - p.Value) / peak
			}
			if current == nil {
				current = &Drawdown{StartTime: p.Time, StartValue: peak, Depth: depth}
			} else {
				current.Depth = math.Max(current.Depth, depth)
			}
			if depth > metrics.MaxDrawdown {
				metrics.MaxDrawdown = depth
			}
		}

		metrics.EquityCurve = append(metrics.EquityCurve, EquityPoint{Time: p.Time, Value: p.Value, Drawdown: depth})
	}

	last := curve[len(curve)-1]
	if current != nil {
		current.EndTime = last.Time
		current.EndValue = last.Value
		current.Duration = current.EndTime.Sub(current.StartTime)
		metrics.Drawdowns = append(metrics.Drawdowns, *current)
	}
	metrics.FinalValue = last.Value
	metrics.SharpeRatio = sharpe(returns)
}

func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)-1))
	if std == 0 {
		return 0
	}
	return mean / std
}

// GetMonthlyReturns returns the monthly returns as a sorted slice
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyReturns))
	for month, profit := range m.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{
			Month:  date,
			Return: profit,
		})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}

// MonthlyReturn represents a monthly return value
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}
