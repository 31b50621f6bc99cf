package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"CapIot.quakeboard/internal/models"
)

// Generator produces one reading per simulated device on every call to Next.
// Roughly one message in ten carries only one of the two readings, so the
// chart shows gaps the way real gateways produce them.
type Generator struct {
	devices []string
	rng     *rand.Rand
}

// NewGenerator creates devices named quake-01, quake-02, …
func NewGenerator(devices int, seed int64) *Generator {
	ids := make([]string, devices)
	for i := range ids {
		ids[i] = fmt.Sprintf("quake-%02d", i+1)
	}
	return &Generator{
		devices: ids,
		rng:     rand.New(rand.NewPCG(uint64(seed), 0)),
	}
}

// Next returns a batch of messages stamped with now.
func (g *Generator) Next(now time.Time) []models.Message {
	msgs := make([]models.Message, 0, len(g.devices))
	for _, id := range g.devices {
		mmi := round(1 + g.rng.Float64()*9)
		magnitude := round(g.rng.Float64() * 9)

		data := models.IotData{MMI: &mmi, RichterMagnitude: &magnitude}
		switch g.rng.IntN(20) {
		case 0:
			data.MMI = nil
		case 1:
			data.RichterMagnitude = nil
		}

		msgs = append(msgs, models.Message{
			DeviceID:    id,
			MessageDate: models.NewTimestamp(now),
			IotData:     data,
		})
	}
	return msgs
}

func round(v float64) float64 {
	return math.Round(v*10) / 10
}
