package consistency

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/evidence-backend/internal/observability"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

type compensation struct {
	action string
	fn     func(ctx context.Context) error
}

// saga tracks the compensations registered by one operation. Compensations
// run newest first, on a context detached from the caller's cancellation.
type saga struct {
	m    *Manager
	id   string
	op   string
	log  *logger.Logger
	comp []compensation
	done bool
}

func (m *Manager) begin(op, caseID, recordID string) *saga {
	id := uuid.NewString()
	m.txlog.add(Transaction{
		ID:        id,
		Operation: op,
		Status:    TxStatusRunning,
		CaseID:    caseID,
		RecordID:  recordID,
		StartedAt: time.Now().UTC(),
	})
	return &saga{m: m, id: id, op: op, log: m.log.With("tx_id", id, "operation", op)}
}

func (s *saga) setRecord(caseID, recordID string) {
	s.m.txlog.update(s.id, func(t *Transaction) {
		t.CaseID = caseID
		t.RecordID = recordID
	})
}

func (s *saga) onRollback(action string, fn func(ctx context.Context) error) {
	s.comp = append(s.comp, compensation{action: action, fn: fn})
}

func (s *saga) finish(status string, cause error, comps []Compensation) {
	s.done = true
	now := time.Now().UTC()
	s.m.txlog.update(s.id, func(t *Transaction) {
		t.Status = status
		t.EndedAt = &now
		if cause != nil {
			t.Error = cause.Error()
		}
		t.Compensations = append(t.Compensations, comps...)
	})
	observability.Current().IncSaga(s.op, status)
}

func (s *saga) commit() {
	if s.done {
		return
	}
	s.finish(TxStatusSucceeded, nil, nil)
}

// compensate runs every registered compensation once and reports which
// ran and whether all of them succeeded.
func (s *saga) compensate(ctx context.Context) ([]Compensation, bool) {
	if len(s.comp) == 0 {
		return nil, true
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.m.opts.CompensationTimeout)
	defer cancel()

	out := make([]Compensation, 0, len(s.comp))
	allOK := true
	for i := len(s.comp) - 1; i >= 0; i-- {
		c := s.comp[i]
		err := c.fn(cctx)
		rec := Compensation{Action: c.action, OK: err == nil}
		result := "ok"
		if err != nil {
			rec.Error = err.Error()
			result = "failed"
			allOK = false
			s.log.Error("compensation failed", "action", c.action, "error", err)
		} else {
			s.log.Info("compensation executed", "action", c.action)
		}
		observability.Current().IncCompensation(c.action, result)
		out = append(out, rec)
	}
	s.comp = nil
	return out, allOK
}

// fail compensates and returns the operation's *Error. A lost race is
// recorded as skipped rather than failed.
func (s *saga) fail(ctx context.Context, cause error, partial bool, recordID string) *Error {
	comps, allOK := s.compensate(ctx)
	names := make([]string, 0, len(comps))
	for _, c := range comps {
		names = append(names, c.Action)
	}
	status := TxStatusFailed
	switch {
	case IsLostRace(cause):
		status = TxStatusSkipped
	case len(comps) > 0 && allOK:
		status = TxStatusCompensated
	}
	if !s.done {
		s.finish(status, cause, comps)
	}
	if status == TxStatusSkipped {
		s.log.Info("transaction skipped", "record_id", recordID, "reason", cause)
	} else {
		s.log.Warn("transaction failed", "record_id", recordID, "error", cause, "compensations", names)
	}
	return &Error{
		TxID:           s.id,
		Operation:      s.op,
		RecordID:       recordID,
		PartialSuccess: partial,
		Compensations:  names,
		Cause:          cause,
	}
}
