package recorder

import (
	"time"

	"github.com/DouglasAmaral0/BinanceBot/internal/models"
)

// Noop discards everything. Used when no database path is configured.
type Noop struct{}

func (Noop) RecordOpen(*models.Position) error       { return nil }
func (Noop) RecordClose(*models.Trade) error         { return nil }
func (Noop) RecordSnapshot(time.Time, float64) error { return nil }
func (Noop) Close() error                            { return nil }
