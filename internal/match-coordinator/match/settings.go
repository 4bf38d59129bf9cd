package match

import (
	"fmt"
	"math"
	"time"
)

const (
	DefaultHouseUserID      = "house"
	DefaultHouseDisplayName = "House"

	// ForfeitElapsedMs é o tempo sentinela gravado para quem não enviou resultado
	ForfeitElapsedMs int64 = math.MaxInt32
)

// Settings concentra os parâmetros de negócio de uma partida.
// É montado uma vez a partir da configuração e repassado a cada partida criada.
type Settings struct {
	WaitTimeout  time.Duration
	PlayTimeout  time.Duration
	TickInterval time.Duration

	CommissionRate float64

	HouseWinProbability float64
	HouseEdgeMin        float64
	HouseEdgeMax        float64
	HouseUserID         string
	HouseDisplayName    string
}

// DefaultSettings retorna os valores padrão de produção
func DefaultSettings() Settings {
	return Settings{
		WaitTimeout:         30 * time.Second,
		PlayTimeout:         300 * time.Second,
		TickInterval:        time.Second,
		CommissionRate:      0.10,
		HouseWinProbability: 0.51,
		HouseEdgeMin:        0.01,
		HouseEdgeMax:        0.15,
		HouseUserID:         DefaultHouseUserID,
		HouseDisplayName:    DefaultHouseDisplayName,
	}
}

// Validate rejeita combinações fora de faixa
func (s Settings) Validate() error {
	switch {
	case s.WaitTimeout <= 0:
		return fmt.Errorf("wait timeout must be positive, got %s", s.WaitTimeout)
	case s.PlayTimeout <= 0:
		return fmt.Errorf("play timeout must be positive, got %s", s.PlayTimeout)
	case s.TickInterval <= 0:
		return fmt.Errorf("tick interval must be positive, got %s", s.TickInterval)
	case math.IsNaN(s.CommissionRate) || s.CommissionRate < 0 || s.CommissionRate > 1:
		return fmt.Errorf("commission rate must be within [0,1], got %v", s.CommissionRate)
	case s.HouseWinProbability < 0 || s.HouseWinProbability > 1:
		return fmt.Errorf("house win probability must be within [0,1], got %v", s.HouseWinProbability)
	case s.HouseEdgeMin < 0 || s.HouseEdgeMax > 1 || s.HouseEdgeMin >= s.HouseEdgeMax:
		return fmt.Errorf("house edge range [%v,%v) is invalid", s.HouseEdgeMin, s.HouseEdgeMax)
	case s.HouseUserID == "":
		return fmt.Errorf("house user id is required")
	}
	return nil
}

func (s Settings) houseName() string {
	if s.HouseDisplayName == "" {
		return DefaultHouseDisplayName
	}
	return s.HouseDisplayName
}
