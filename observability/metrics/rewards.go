package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type RewardsMetrics struct {
	claimsServed     *prometheus.CounterVec
	claimsRejected   *prometheus.CounterVec
	tasksCreated     prometheus.Counter
	unclaimedSwept   prometheus.Counter
	totalDistributed prometheus.Gauge
}

var (
	rewardsOnce     sync.Once
	rewardsRegistry *RewardsMetrics
)

func Rewards() *RewardsMetrics {
	rewardsOnce.Do(func() {
		rewardsRegistry = &RewardsMetrics{
			claimsServed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rewards_claims_served_total",
				Help: "Count of successful reward claims by task.",
			}, []string{"task"}),
			claimsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rewards_claims_rejected_total",
				Help: "Count of rejected reward claims by reason.",
			}, []string{"reason"}),
			tasksCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "rewards_tasks_created_total",
				Help: "Count of reward tasks registered on the ledger.",
			}),
			unclaimedSwept: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "rewards_unclaimed_sweeps_total",
				Help: "Count of unclaimed pool sweeps executed after task end.",
			}),
			totalDistributed: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "rewards_total_distributed",
				Help: "Cumulative reward amount paid out across all tasks.",
			}),
		}
		prometheus.MustRegister(
			rewardsRegistry.claimsServed,
			rewardsRegistry.claimsRejected,
			rewardsRegistry.tasksCreated,
			rewardsRegistry.unclaimedSwept,
			rewardsRegistry.totalDistributed,
		)
	})
	return rewardsRegistry
}

func (m *RewardsMetrics) ClaimServed(task string) {
	if m == nil {
		return
	}
	m.claimsServed.WithLabelValues(task).Inc()
}

func (m *RewardsMetrics) ClaimRejected(reason string) {
	if m == nil || reason == "" {
		return
	}
	m.claimsRejected.WithLabelValues(reason).Inc()
}

func (m *RewardsMetrics) TaskCreated() {
	if m == nil {
		return
	}
	m.tasksCreated.Inc()
}

func (m *RewardsMetrics) UnclaimedSwept() {
	if m == nil {
		return
	}
	m.unclaimedSwept.Inc()
}

func (m *RewardsMetrics) SetTotalDistributed(total *big.Int) {
	if m == nil || total == nil {
		return
	}
	value, _ := new(big.Float).SetInt(total).Float64()
	m.totalDistributed.Set(value)
}
