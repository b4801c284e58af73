// Package duration derives the minimum, total and end time of a selected set
// of services.
package duration

import (
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/clock"
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/model"
)

// DefaultMinService is used when no service has been selected.
const DefaultMinService = 30

// MinService returns the shortest duration in services.
func MinService(services []model.Service) int {
	if len(services) == 0 {
		return DefaultMinService
	}
	m := services[0].DurationMinutes
	for _, s := range services[1:] {
		m = min(m, s.DurationMinutes)
	}
	return m
}

// Total sums the durations of services.
func Total(services []model.Service) int {
	total := 0
	for _, s := range services {
		total += s.DurationMinutes
	}
	return total
}

// EndTime adds minutes to an "HH:MM" start. The result is not wrapped past
// midnight.
func EndTime(start string, minutes int) string {
	return clock.FromMinutes(clock.ToMinutes(start) + minutes)
}
