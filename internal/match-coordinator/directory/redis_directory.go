package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/skill-wager-platform/internal/match-coordinator/match"
)

// DefaultNamespace é o prefixo das chaves do diretório
const DefaultNamespace = "match"

// RedisDirectory guarda os labels públicos das partidas e um pool de partidas
// em Waiting por (gameId, betAmount). O claim usa SPOP, então duas requisições
// concorrentes nunca recebem a mesma partida.
type RedisDirectory struct {
	Client    *redis.Client
	Namespace string
	LabelTTL  time.Duration // limpa labels órfãos se o processo morrer
}

// NewRedisDirectory cria o diretório com namespace e TTL padrão
func NewRedisDirectory(c *redis.Client, namespace string) *RedisDirectory {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &RedisDirectory{Client: c, Namespace: namespace, LabelTTL: time.Hour}
}

func (d *RedisDirectory) labelKey(matchID string) string {
	return d.Namespace + ":label:" + matchID
}

func (d *RedisDirectory) poolKey(gameID string, betAmount int64) string {
	return fmt.Sprintf("%s:waiting:%s:%d", d.Namespace, gameID, betAmount)
}

// PublishLabel grava o label e mantém o pool de Waiting consistente com o status
func (d *RedisDirectory) PublishLabel(ctx context.Context, matchID string, l match.Label) error {
	b, err := json.Marshal(l)
	if err != nil {
		return err
	}
	pool := d.poolKey(l.GameID, l.BetAmount)
	_, err = d.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, d.labelKey(matchID), b, d.LabelTTL)
		if l.Status == match.StatusWaiting {
			p.SAdd(ctx, pool, matchID)
		} else {
			p.SRem(ctx, pool, matchID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish label %s: %w", matchID, err)
	}
	return nil
}

// Claim remove e retorna uma partida em Waiting com os atributos pedidos
func (d *RedisDirectory) Claim(ctx context.Context, gameID string, betAmount int64) (string, bool, error) {
	id, err := d.Client.SPop(ctx, d.poolKey(gameID, betAmount)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("claim waiting match: %w", err)
	}
	return id, true, nil
}

// Lookup lê o label publicado de uma partida
func (d *RedisDirectory) Lookup(ctx context.Context, matchID string) (match.Label, bool, error) {
	b, err := d.Client.Get(ctx, d.labelKey(matchID)).Bytes()
	if err == redis.Nil {
		return match.Label{}, false, nil
	}
	if err != nil {
		return match.Label{}, false, err
	}
	var l match.Label
	if err := json.Unmarshal(b, &l); err != nil {
		return match.Label{}, false, err
	}
	return l, true, nil
}

// Remove apaga o label e tira a partida do pool
func (d *RedisDirectory) Remove(ctx context.Context, matchID string, l match.Label) error {
	_, err := d.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, d.labelKey(matchID))
		p.SRem(ctx, d.poolKey(l.GameID, l.BetAmount), matchID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove label %s: %w", matchID, err)
	}
	return nil
}
