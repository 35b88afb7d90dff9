package main

import (
	"github.com/desim/desim/model"
	"github.com/desim/desim/process"
	"github.com/desim/desim/resource"
	"github.com/desim/desim/rng"
	"github.com/desim/desim/simtime"
)

// buildBankModel assembles the single-teller M/M/1 bank: interarrival
// Exp(mean 10), service Exp(mean 8), so the expected teller utilization is
// 0.8 and the expected queue size around 3.
func buildBankModel(m *model.Model) {
	bank := m.NewLocation(nil, "Bank")
	queue := m.NewQueue(bank, "Queue")
	tellerArea := m.NewLocation(bank, "TellerArea")
	teller := m.NewResource(bank.Name(), "Teller", "Teller", 1)
	entrance := m.NewSource(bank, "Entrance")
	exit := m.NewSink(bank, "Exit")

	interarrival := m.Rand.NewSequence(rng.Exponential, 1, 10)
	service := m.Rand.NewSequence(rng.Exponential, 2, 8)

	stats := process.NewClassStats(m.Data, "Customer")

	entrance.AddGenerator(&model.Generator{
		EntityClass:  "Customer",
		Interarrival: interarrival,
		Stats:        stats,
		Run: func(e *model.Entity, p *process.Process) error {
			if err := e.MoveTo(queue.Location); err != nil {
				return err
			}
			err := p.WithAcquire(teller, 1, func(*resource.Assignment) error {
				if err := e.MoveTo(tellerArea); err != nil {
					return err
				}
				return p.WaitFor(simtime.FromScalar(service.Next()))
			})
			if err != nil {
				return err
			}
			return e.MoveTo(exit.Location)
		},
	})

	entrance.Start()
}
