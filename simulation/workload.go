package simulation

import (
	"fmt"
	"math/rand"

	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/ringkv/message"
	"github.com/maxpoletaev/ringkv/replication"
	"github.com/maxpoletaev/ringkv/transport/emulnet"
)

// Workload is a scripted sequence of client requests: create a set of keys,
// crash some nodes, then read, update and delete every key.
type Workload struct {
	// Keys is the number of keys created.
	Keys int

	// Failures is the number of nodes crashed after the keys are created.
	Failures int

	// Seed drives the choice of coordinators and failed nodes.
	Seed int64

	// ConvergeLimit bounds the number of ticks to wait for the group to form.
	ConvergeLimit int
}

func DefaultWorkload() Workload {
	return Workload{
		Keys:          100,
		Failures:      1,
		Seed:          1,
		ConvergeLimit: 100,
	}
}

// Counts are the coordinator outcomes of one kind of request.
type Counts struct {
	Success  int
	Failure  int
	Rejected int
}

func (c Counts) Total() int {
	return c.Success + c.Failure + c.Rejected
}

type Report struct {
	ConvergedIn int
	Converged   bool
	Failed      []int
	Outcomes    map[message.Kind]Counts
	Network     emulnet.Stats
	Ticks       int64
}

func (r Report) String() string {
	s := fmt.Sprintf("converged=%v in %d ticks, failed nodes %v, ran %d ticks\n",
		r.Converged, r.ConvergedIn, r.Failed, r.Ticks)

	for _, kind := range []message.Kind{message.KindCreate, message.KindRead, message.KindUpdate, message.KindDelete} {
		c := r.Outcomes[kind]
		s += fmt.Sprintf("%-7s success=%d failure=%d rejected=%d\n", kind, c.Success, c.Failure, c.Rejected)
	}

	s += fmt.Sprintf("network sent=%d received=%d dropped=%d duplicated=%d",
		r.Network.Sent, r.Network.Received, r.Network.Dropped, r.Network.Duplicated)

	return s
}

// RunWorkload starts the simulation, waits for the group to form and runs
// the workload against it.
func (s *Simulation) RunWorkload(w Workload) Report {
	rnd := rand.New(rand.NewSource(w.Seed))
	settle := int(s.conf.Node.Timeout) + 2
	report := Report{Outcomes: make(map[message.Kind]Counts)}

	s.Start()
	report.ConvergedIn, report.Converged = s.RunUntil(w.ConvergeLimit, s.Converged)

	// Let the ring settle on every node after membership converged.
	s.Run(2)

	keys := make([]string, w.Keys)
	for i := range keys {
		keys[i] = fmt.Sprintf("key%d", i)
	}

	s.phase(rnd, &report, message.KindCreate, keys, settle)

	for i := 0; i < w.Failures; i++ {
		alive := s.Alive()
		if len(alive) == 0 {
			break
		}

		victim := alive[rnd.Intn(len(alive))]
		_ = s.Fail(victim)
		report.Failed = append(report.Failed, victim)
	}

	s.phase(rnd, &report, message.KindRead, keys, settle)
	s.phase(rnd, &report, message.KindUpdate, keys, settle)
	s.phase(rnd, &report, message.KindDelete, keys, settle)

	for _, out := range s.outcomes {
		c := report.Outcomes[out.Kind]

		if out.Success {
			c.Success++
		} else {
			c.Failure++
		}

		report.Outcomes[out.Kind] = c
	}

	report.Network = s.net.Total()
	report.Ticks = s.now

	return report
}

// phase issues one request of the kind per key from a random live node, then
// runs long enough for all of them to resolve.
func (s *Simulation) phase(rnd *rand.Rand, report *Report, kind message.Kind, keys []string, settle int) {
	alive := s.Alive()
	if len(alive) == 0 {
		return
	}

	for _, key := range keys {
		n := s.nodes[alive[rnd.Intn(len(alive))]]

		var err error

		switch kind {
		case message.KindCreate:
			_, err = n.Create(key, "value-"+key)
		case message.KindRead:
			_, err = n.Read(key)
		case message.KindUpdate:
			_, err = n.Update(key, "updated-"+key)
		case message.KindDelete:
			_, err = n.Delete(key)
		}

		if err != nil {
			c := report.Outcomes[kind]
			c.Rejected++
			report.Outcomes[kind] = c

			level.Debug(s.logger).Log("msg", "request rejected", "kind", kind, "key", key, "err", err)
		}
	}

	s.Run(settle)
}

// Resolved returns the outcomes of the given kind.
func Resolved(outcomes []replication.Outcome, kind message.Kind) []replication.Outcome {
	var res []replication.Outcome

	for _, out := range outcomes {
		if out.Kind == kind {
			res = append(res, out)
		}
	}

	return res
}
