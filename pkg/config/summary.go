package config

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// SummaryConfig drives the Room-4 supervisor summary schedule.
type SummaryConfig struct {
	// Timezone is the IANA zone name the slot boundaries are computed in.
	Timezone string

	// Location is the resolved Timezone.
	Location *time.Location

	// MorningHour and EveningHour are the local hours of the two daily
	// summary slots.
	MorningHour int
	EveningHour int
}

func loadSummaryConfig() (SummaryConfig, error) {
	name := getEnvOrDefault("SUPERVISOR_SUMMARY_TIMEZONE", "America/Bahia")
	location, err := time.LoadLocation(name)
	if err != nil {
		return SummaryConfig{}, fmt.Errorf("%w: SUPERVISOR_SUMMARY_TIMEZONE=%q", ErrInvalidEnv, name)
	}

	morning, err := summaryHour("SUPERVISOR_SUMMARY_MORNING_HOUR", 7)
	if err != nil {
		return SummaryConfig{}, err
	}
	evening, err := summaryHour("SUPERVISOR_SUMMARY_EVENING_HOUR", 19)
	if err != nil {
		return SummaryConfig{}, err
	}

	return SummaryConfig{
		Timezone:    name,
		Location:    location,
		MorningHour: morning,
		EveningHour: evening,
	}, nil
}

func summaryHour(key string, defaultVal int) (int, error) {
	hour, err := intEnvOrDefault(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: %s must be between 0 and 23", ErrInvalidEnv, key)
	}
	return hour, nil
}
