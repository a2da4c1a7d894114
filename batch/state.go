package batch

import (
	"fmt"
	"time"

	"commentdedup/dedup"
)

// State состояние обработки порции
type State int

const (
	Pending State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText реализует encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// canTransition допустимые переходы: Pending -> Running -> Completed|Failed,
// Failed -> Running для повторной попытки
func (s State) canTransition(to State) bool {
	switch s {
	case Pending:
		return to == Running
	case Running:
		return to == Completed || to == Failed
	case Failed:
		return to == Running
	default:
		return false
	}
}

// Attempt одна попытка обработки части порции
type Attempt struct {
	Number   int           `json:"number"` // 0 - первая попытка
	Pieces   int           `json:"pieces"`
	Size     int           `json:"size"` // размер частей на этой попытке
	Fuzzy    bool          `json:"fuzzy"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Outcome итог обработки порции со всеми попытками восстановления
type Outcome struct {
	BatchID  int       `json:"batch_id"`
	Offset   int64     `json:"origin_offset"`
	Size     int       `json:"size"`
	State    State     `json:"state"`
	Attempts []Attempt `json:"attempts"`

	// Results результаты успешно обработанных частей
	Results []*dedup.BatchResult `json:"-"`

	// Unprocessed записи частей, не обработанных после всех попыток
	Unprocessed      []dedup.Record `json:"-"`
	UnprocessedCount int            `json:"unprocessed_count"`

	Err error `json:"-"`
}

// Partial часть порции обработана, часть нет
func (o *Outcome) Partial() bool {
	return o.State == Failed && len(o.Results) > 0
}

// batchRun отслеживает состояние одной порции внутри обработчика
type batchRun struct {
	outcome *Outcome
}

func newBatchRun(b dedup.Batch) *batchRun {
	return &batchRun{outcome: &Outcome{
		BatchID: b.ID,
		Offset:  b.Offset,
		Size:    b.Size,
		State:   Pending,
	}}
}

func (r *batchRun) transition(to State) {
	if !r.outcome.State.canTransition(to) {
		panic(fmt.Sprintf("batch %d: invalid transition %s -> %s", r.outcome.BatchID, r.outcome.State, to))
	}
	r.outcome.State = to
}
