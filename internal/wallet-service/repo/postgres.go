package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// Postgres implementa operações de carteira em banco
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
)

// GetOrCreateWallet retorna o walletId e saldo de um usuário, criando a carteira se não existir
// Usa transação para garantir atomicidade
func (p *Postgres) GetOrCreateWallet(ctx context.Context, userID string) (walletID string, balance int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, err
	}
	defer tx.Rollback()

	id, bal, err := getOrCreate(ctx, tx, userID)
	if err != nil {
		return "", 0, err
	}
	if err = tx.Commit(); err != nil {
		return "", 0, err
	}
	return id, bal, nil
}

// Deposit incrementa o saldo da carteira (criando-a se preciso) e registra no ledger
func (p *Postgres) Deposit(ctx context.Context, userID string, amount int64, externalRef string) (walletID string, newBalance int64, err error) {
	if externalRef == "" {
		externalRef = "deposit:" + uuid.NewString()
	}
	return p.move(ctx, userID, amount, externalRef, "DEPOSIT")
}

// Debit retira saldo para a entrada de uma aposta.
// Idempotente por (wallet_id, external_ref): repetir a ref devolve o saldo atual.
func (p *Postgres) Debit(ctx context.Context, userID string, amount int64, externalRef string) (walletID string, newBalance int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, err
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx, `SELECT id, balance_minor FROM wallets WHERE user_id=$1 FOR UPDATE`, userID).Scan(&walletID, &balance)
	if err == sql.ErrNoRows {
		return "", 0, ErrNotFound
	}
	if err != nil {
		return "", 0, err
	}

	done, err := alreadyApplied(ctx, tx, walletID, externalRef)
	if err != nil {
		return "", 0, err
	}
	if done {
		return walletID, balance, nil
	}

	if balance < amount {
		return "", 0, ErrInsufficientFunds
	}

	if err = tx.QueryRowContext(ctx,
		`UPDATE wallets SET balance_minor = balance_minor - $1, version = version + 1 WHERE id=$2 RETURNING balance_minor`,
		amount, walletID).Scan(&newBalance); err != nil {
		return "", 0, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_ledger(wallet_id, operation_type, amount_minor, external_ref) VALUES($1,'DEBIT',$2,$3)`,
		walletID, amount, externalRef); err != nil {
		return "", 0, err
	}

	if err = tx.Commit(); err != nil {
		return "", 0, err
	}
	return walletID, newBalance, nil
}

// Credit devolve ou paga saldo (estorno, payout). Cria a carteira se não existir.
// Idempotente por (wallet_id, external_ref).
func (p *Postgres) Credit(ctx context.Context, userID string, amount int64, externalRef string) (walletID string, newBalance int64, err error) {
	return p.move(ctx, userID, amount, externalRef, "CREDIT")
}

// move aplica um crédito com lock pessimista na linha da carteira
func (p *Postgres) move(ctx context.Context, userID string, amount int64, externalRef, op string) (walletID string, newBalance int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, err
	}
	defer tx.Rollback()

	if _, _, err = getOrCreate(ctx, tx, userID); err != nil {
		return "", 0, err
	}

	var balance int64
	if err = tx.QueryRowContext(ctx, `SELECT id, balance_minor FROM wallets WHERE user_id=$1 FOR UPDATE`, userID).Scan(&walletID, &balance); err != nil {
		if err == sql.ErrNoRows {
			return "", 0, ErrNotFound
		}
		return "", 0, err
	}

	done, err := alreadyApplied(ctx, tx, walletID, externalRef)
	if err != nil {
		return "", 0, err
	}
	if done {
		return walletID, balance, nil
	}

	if err = tx.QueryRowContext(ctx,
		`UPDATE wallets SET balance_minor = balance_minor + $1, version = version + 1 WHERE id=$2 RETURNING balance_minor`,
		amount, walletID).Scan(&newBalance); err != nil {
		return "", 0, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_ledger(wallet_id, operation_type, amount_minor, external_ref) VALUES($1,$2,$3,$4)`,
		walletID, op, amount, externalRef); err != nil {
		return "", 0, err
	}

	if err = tx.Commit(); err != nil {
		return "", 0, err
	}
	return walletID, newBalance, nil
}

func getOrCreate(ctx context.Context, tx *sql.Tx, userID string) (string, int64, error) {
	var id string
	var bal int64
	err := tx.QueryRowContext(ctx, `SELECT id, balance_minor FROM wallets WHERE user_id=$1`, userID).Scan(&id, &bal)
	if err == sql.ErrNoRows {
		id = uuid.New().String()
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO wallets(id, user_id, balance_minor, version) VALUES($1,$2,0,1) ON CONFLICT (user_id) DO NOTHING`,
			id, userID); err != nil {
			return "", 0, err
		}
		return id, 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	return id, bal, nil
}

func alreadyApplied(ctx context.Context, tx *sql.Tx, walletID, externalRef string) (bool, error) {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM wallet_ledger WHERE wallet_id=$1 AND external_ref=$2`, walletID, externalRef).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
