package recorder

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/DouglasAmaral0/BinanceBot/internal/models"
)

// BotState is everything the engine needs to survive a restart.
type BotState struct {
	Position   *models.Position      `json:"position,omitempty"`
	Risk       models.DailyRiskState `json:"risk"`
	LastSold   string                `json:"last_sold,omitempty"`
	LastSoldAt time.Time             `json:"last_sold_at,omitempty"`
	Trades     []*models.Trade       `json:"trades,omitempty"`
}

// StateFile persists BotState as JSON, written atomically via a
// temporary file.
type StateFile struct {
	path string
	mu   sync.Mutex
}

func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

func (s *StateFile) Save(state BotState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the persisted state. A missing file yields a zero state.
func (s *StateFile) Load() (BotState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return BotState{}, nil
	}
	if err != nil {
		return BotState{}, err
	}

	var state BotState
	if err := json.Unmarshal(data, &state); err != nil {
		return BotState{}, err
	}
	return state, nil
}
