package consistency

import (
	"sync"
	"time"
)

const (
	TxStatusRunning     = "running"
	TxStatusSucceeded   = "succeeded"
	TxStatusSkipped     = "skipped"
	TxStatusFailed      = "failed"
	TxStatusCompensated = "compensated"
)

const (
	OpCreateWithIndex = "create_with_index"
	OpDeleteWithIndex = "delete_with_index"
	OpUpdateMetadata  = "update_metadata"
	OpReindex         = "reindex"
	OpClearCaseData   = "clear_case_data"
	OpIngestEvidence  = "ingest_evidence"
)

const DefaultTxLogCapacity = 256

type Compensation struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

type Transaction struct {
	ID            string         `json:"id"`
	Operation     string         `json:"operation"`
	Status        string         `json:"status"`
	CaseID        string         `json:"case_id,omitempty"`
	RecordID      string         `json:"record_id,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	EndedAt       *time.Time     `json:"ended_at,omitempty"`
	Error         string         `json:"error,omitempty"`
	Compensations []Compensation `json:"compensations,omitempty"`
}

func (t Transaction) clone() Transaction {
	if t.EndedAt != nil {
		e := *t.EndedAt
		t.EndedAt = &e
	}
	t.Compensations = append([]Compensation(nil), t.Compensations...)
	return t
}

// TxLog is a fixed-capacity ring of recent transactions. The oldest entry is
// overwritten once the ring is full. It is for operators, not correctness.
type TxLog struct {
	mu    sync.Mutex
	slots []Transaction
	next  int
	size  int
	index map[string]int
}

func NewTxLog(capacity int) *TxLog {
	if capacity <= 0 {
		capacity = DefaultTxLogCapacity
	}
	return &TxLog{slots: make([]Transaction, capacity), index: make(map[string]int, capacity)}
}

func (l *TxLog) Capacity() int { return len(l.slots) }

func (l *TxLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

func (l *TxLog) add(tx Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.size == len(l.slots) {
		delete(l.index, l.slots[l.next].ID)
	} else {
		l.size++
	}
	l.slots[l.next] = tx
	l.index[tx.ID] = l.next
	l.next = (l.next + 1) % len(l.slots)
}

// update applies fn to the transaction if it is still in the ring.
func (l *TxLog) update(id string, fn func(*Transaction)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i, ok := l.index[id]; ok {
		fn(&l.slots[i])
	}
}

func (l *TxLog) Get(id string) (Transaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return Transaction{}, false
	}
	return l.slots[i].clone(), true
}

// Recent returns up to limit transactions, newest first. limit <= 0 returns
// all of them.
func (l *TxLog) Recent(limit int) []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > l.size {
		limit = l.size
	}
	out := make([]Transaction, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (l.next - i + len(l.slots)) % len(l.slots)
		out = append(out, l.slots[idx].clone())
	}
	return out
}
