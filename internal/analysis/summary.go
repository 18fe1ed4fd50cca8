package analysis

import "github.com/goodtune/timerflow/internal/session"

// Summary aggregates a set of sessions.
type Summary struct {
	Sessions          int                     `json:"sessions" yaml:"sessions"`
	Completed         int                     `json:"completed" yaml:"completed"`
	Canceled          int                     `json:"canceled" yaml:"canceled"`
	Unclassified      int                     `json:"unclassified" yaml:"unclassified"`
	Outcomes          map[session.Outcome]int `json:"outcomes" yaml:"outcomes"`
	PlannedSeconds    int64                   `json:"plannedSeconds" yaml:"plannedSeconds"`
	ActiveSeconds     int64                   `json:"activeSeconds" yaml:"activeSeconds"`
	PauseSeconds      int64                   `json:"pauseSeconds" yaml:"pauseSeconds"`
	OverageSeconds    int64                   `json:"overageSeconds" yaml:"overageSeconds"`
	AverageEfficiency *float64                `json:"averageEfficiency,omitempty" yaml:"averageEfficiency,omitempty"`
}

// Summarize aggregates logs, analyzing any that carry no analysis yet.
func Summarize(logs []session.TimerLog) Summary {
	summary := Summary{Outcomes: make(map[session.Outcome]int)}

	var efficiencyTotal float64
	var efficiencyCount int

	for _, log := range logs {
		analysis := log.Analysis
		if analysis == nil {
			analysis = Analyze(log).Analysis
		}

		summary.Sessions++
		if log.Completed {
			summary.Completed++
		}
		if log.Canceled {
			summary.Canceled++
		}
		if log.Outcome == "" {
			summary.Unclassified++
		} else {
			summary.Outcomes[log.Outcome]++
		}

		summary.PlannedSeconds += log.InitialDuration
		summary.ActiveSeconds += analysis.TotalActiveTime
		summary.PauseSeconds += log.TotalPauseDuration
		summary.OverageSeconds += log.OverageTime

		// Count-up sessions have no plan to measure against.
		if analysis.Efficiency != nil && log.InitialDuration > 0 {
			efficiencyTotal += *analysis.Efficiency
			efficiencyCount++
		}
	}

	if efficiencyCount > 0 {
		average := efficiencyTotal / float64(efficiencyCount)
		summary.AverageEfficiency = &average
	}

	return summary
}
