package engine

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"bbbot/internal/strategy"

	"go.uber.org/zap"
)

type Decision struct {
	RunID         string          `json:"run_id"`
	Timestamp     time.Time       `json:"timestamp"`
	BarTime       time.Time       `json:"bar_time"`
	Symbol        string          `json:"symbol"`
	Balance       float64         `json:"balance"`
	Equity        float64         `json:"equity"`
	Close         float64         `json:"close"`
	SMA           float64         `json:"sma"`
	STD           float64         `json:"std"`
	UpperBand     float64         `json:"upper_band"`
	LowerBand     float64         `json:"lower_band"`
	Intent        strategy.Action `json:"intent"`
	IntentQty     string          `json:"intent_qty,omitempty"`
	Reason        string          `json:"reason"`
	Result        string          `json:"result"`
	RejectReason  string          `json:"reject_reason,omitempty"`
	OrderID       string          `json:"order_id,omitempty"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	OrderPrice    float64         `json:"order_price,omitempty"`
	FillPrice     float64         `json:"fill_price,omitempty"`
	Closed        int             `json:"closed"`
	CloseError    string          `json:"close_error,omitempty"`
}

// DecisionLogger appends one JSON line per iteration. It is an audit trail;
// nothing reads it back.
type DecisionLogger struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	log    *zap.Logger
	mu     sync.Mutex
}

func NewDecisionLogger(path string, runID string, log *zap.Logger) (*DecisionLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &DecisionLogger{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
		log:    log,
	}, nil
}

func (d *DecisionLogger) RunID() string {
	return d.runID
}

func (d *DecisionLogger) Append(decision Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	payload, err := json.Marshal(decision)
	if err != nil {
		d.log.Error("failed to marshal decision", zap.Error(err))
		return
	}
	if _, err := d.writer.Write(append(payload, '\n')); err != nil {
		d.log.Error("failed to write decision", zap.Error(err))
		return
	}
	if err := d.writer.Flush(); err != nil {
		d.log.Error("failed to flush decision log", zap.Error(err))
	}
}

func (d *DecisionLogger) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writer.Flush(); err != nil {
		_ = d.file.Close()
		return err
	}
	return d.file.Close()
}
