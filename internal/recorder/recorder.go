package recorder

import (
	"time"

	"github.com/DouglasAmaral0/BinanceBot/internal/models"
)

// Recorder persists the trading history as it happens.
type Recorder interface {
	RecordOpen(position *models.Position) error
	RecordClose(trade *models.Trade) error
	RecordSnapshot(at time.Time, portfolioValue float64) error
	Close() error
}

// Multi fans every record call out to several recorders, returning the
// first error.
type Multi []Recorder

func (m Multi) RecordOpen(position *models.Position) error {
	for _, r := range m {
		if err := r.RecordOpen(position); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) RecordClose(trade *models.Trade) error {
	for _, r := range m {
		if err := r.RecordClose(trade); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) RecordSnapshot(at time.Time, portfolioValue float64) error {
	for _, r := range m {
		if err := r.RecordSnapshot(at, portfolioValue); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close() error {
	var firstErr error
	for _, r := range m {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
