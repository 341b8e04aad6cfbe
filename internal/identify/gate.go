package identify

// GateState describes who the engine is currently answering.
type GateState string

const (
	GateFree     GateState = "free"
	GateActive   GateState = "active"
	GateOrphaned GateState = "orphaned"
)

// GateStatus is a snapshot of the request gate.
type GateStatus struct {
	State GateState `json:"state"`
	Owner Modality  `json:"owner,omitempty"`
}

// requestGate enforces one outstanding identify request across modalities.
// An orphaned gate belongs to nobody but still expects one reply.
type requestGate struct {
	owner    Modality
	active   bool
	orphaned bool
}

func (g *requestGate) busy() bool {
	return g.active || g.orphaned
}

// blocked returns why a new request cannot be issued, or nil.
func (g *requestGate) blocked() error {
	switch {
	case g.orphaned:
		return errAwaitingStaleReply
	case g.active:
		return ErrEngineBusy
	default:
		return nil
	}
}

func (g *requestGate) acquire(m Modality) error {
	if err := g.blocked(); err != nil {
		return err
	}
	g.owner = m
	g.active = true
	return nil
}

func (g *requestGate) owns(m Modality) bool {
	return g.active && g.owner == m
}

func (g *requestGate) release(m Modality) {
	if g.owns(m) {
		g.active = false
		g.owner = ""
	}
}

// abandon orphans the gate if m holds it.
func (g *requestGate) abandon(m Modality) {
	if g.owns(m) {
		g.active = false
		g.owner = ""
		g.orphaned = true
	}
}

// forget gives up on the reply an orphaned gate was waiting for. It reports
// whether there was one.
func (g *requestGate) forget() bool {
	was := g.orphaned
	g.orphaned = false
	return was
}

// route decides who receives an identify reply. ok is false when the reply
// must be discarded; an orphaned gate is cleared by the reply it was awaiting.
func (g *requestGate) route() (Modality, bool) {
	switch {
	case g.orphaned:
		g.orphaned = false
		return "", false
	case g.active:
		return g.owner, true
	default:
		return "", false
	}
}

func (g *requestGate) status() GateStatus {
	switch {
	case g.orphaned:
		return GateStatus{State: GateOrphaned}
	case g.active:
		return GateStatus{State: GateActive, Owner: g.owner}
	default:
		return GateStatus{State: GateFree}
	}
}
