package match

import "math"

// HouseScore gera a pontuação da casa a partir da pontuação do humano.
// Com probabilidade HouseWinProbability a casa supera o humano por um fator u
// em [HouseEdgeMin, HouseEdgeMax); caso contrário fica abaixo pelo mesmo fator.
func HouseScore(human int64, rnd Random, s Settings) int64 {
	houseWins := rnd.Float64() < s.HouseWinProbability
	u := s.HouseEdgeMin + rnd.Float64()*(s.HouseEdgeMax-s.HouseEdgeMin)

	factor := 1 - u
	if houseWins {
		factor = 1 + u
	}
	score := math.Floor(float64(human) * factor)
	switch {
	case score < 0:
		return 0
	case score >= MaxScore:
		return MaxScore
	}
	return int64(score)
}
