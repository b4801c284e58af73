package main

import (
	"fmt"
	"io"
	"os"

	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/model"
	"gopkg.in/yaml.v3"
)

// dayFixture is one schedule day as written by hand in YAML.
type dayFixture struct {
	Services []struct {
		ID              string `yaml:"id"`
		Name            string `yaml:"name"`
		DurationMinutes int    `yaml:"duration_minutes"`
	} `yaml:"services"`
	Slots []struct {
		ID        string `yaml:"id"`
		StartTime string `yaml:"start_time"`
		EndTime   string `yaml:"end_time"`
		Booked    bool   `yaml:"booked"`
	} `yaml:"slots"`
	Bookings []struct {
		ID        string `yaml:"id"`
		StartTime string `yaml:"start_time"`
		EndTime   string `yaml:"end_time"`
	} `yaml:"bookings"`
}

type day struct {
	services []model.Service
	slots    []model.TimeSlot
	bookings []model.Booking
}

func loadFixture(path string) (day, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return day{}, err
		}
		defer f.Close()
		r = f
	}
	return decodeFixture(r)
}

func decodeFixture(r io.Reader) (day, error) {
	var fx dayFixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && err != io.EOF {
		return day{}, fmt.Errorf("decode fixture: %w", err)
	}

	var d day
	for _, s := range fx.Services {
		if s.DurationMinutes <= 0 {
			return day{}, fmt.Errorf("service %q: duration_minutes must be positive", s.ID)
		}
		d.services = append(d.services, model.Service{ID: s.ID, Name: s.Name, DurationMinutes: s.DurationMinutes})
	}
	for i, s := range fx.Slots {
		id := s.ID
		if id == "" {
			id = fmt.Sprintf("slot-%d", i+1)
		}
		d.slots = append(d.slots, model.TimeSlot{ID: id, StartTime: s.StartTime, EndTime: s.EndTime, IsBooked: s.Booked})
	}
	for i, b := range fx.Bookings {
		id := b.ID
		if id == "" {
			id = fmt.Sprintf("booking-%d", i+1)
		}
		d.bookings = append(d.bookings, model.Booking{ID: id, StartTime: b.StartTime, EndTime: b.EndTime})
	}
	return d, nil
}
