package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/example/food-donation/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) CreateUser(ctx context.Context, u *models.User, passwordHash string) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO users(id, name, email, password_hash, user_type, latitude, longitude) VALUES($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Name, u.Email, passwordHash, u.Role, u.Latitude, u.Longitude)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrEmailTaken
	}
	return err
}

func (p *PostgresStore) UserByEmail(ctx context.Context, email string) (*models.User, string, error) {
	var u models.User
	var hash string
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, user_type, latitude, longitude FROM users WHERE email=$1`, email).
		Scan(&u.ID, &u.Name, &u.Email, &hash, &u.Role, &u.Latitude, &u.Longitude)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return &u, hash, nil
}

func (p *PostgresStore) UserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, email, user_type, latitude, longitude FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Latitude, &u.Longitude)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *PostgresStore) CreateGathering(ctx context.Context, g *models.Gathering) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO gatherings(id, user_id, food_details, available_from, available_to, latitude, longitude, is_taken)
		 VALUES($1,$2,$3,$4,$5,$6,$7,false)`,
		g.ID, g.DonorID, g.FoodDetails, g.AvailableFrom, g.AvailableTo, g.Latitude, g.Longitude)
	return err
}

const gatheringCols = `id, user_id, food_details, available_from, available_to, latitude, longitude, is_taken`

func scanGathering(row interface{ Scan(...any) error }) (*models.Gathering, error) {
	var g models.Gathering
	err := row.Scan(&g.ID, &g.DonorID, &g.FoodDetails, &g.AvailableFrom, &g.AvailableTo, &g.Latitude, &g.Longitude, &g.IsClaimed)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (p *PostgresStore) Gathering(ctx context.Context, id string) (*models.Gathering, error) {
	g, err := scanGathering(p.db.QueryRowContext(ctx,
		`SELECT `+gatheringCols+` FROM gatherings WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return g, err
}

func (p *PostgresStore) AvailableGatherings(ctx context.Context, now time.Time, limit int) ([]models.Gathering, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+gatheringCols+` FROM gatherings
		 WHERE is_taken=false AND available_from<=$1 AND available_to>=$1
		 ORDER BY available_from LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGatherings(rows)
}

func (p *PostgresStore) GatheringsByIDs(ctx context.Context, ids []string) ([]models.Gathering, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+gatheringCols+` FROM gatherings WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGatherings(rows)
}

func (p *PostgresStore) GatheringsByDonor(ctx context.Context, donorID string) ([]models.Gathering, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+gatheringCols+` FROM gatherings WHERE user_id=$1 ORDER BY available_from`, donorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGatherings(rows)
}

func collectGatherings(rows *sql.Rows) ([]models.Gathering, error) {
	out := make([]models.Gathering, 0)
	for rows.Next() {
		g, err := scanGathering(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// ClaimGathering relies on a conditional UPDATE so concurrent claimants
// serialize on the row lock: exactly one sees is_taken flip.
func (p *PostgresStore) ClaimGathering(ctx context.Context, gatheringID, recipientID string, at time.Time) (*models.Claim, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE gatherings SET is_taken=true WHERE id=$1 AND is_taken=false`, gatheringID)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM gatherings WHERE id=$1)`, gatheringID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrAlreadyClaimed
	}

	c := &models.Claim{
		ID:          uuid.NewString(),
		GatheringID: gatheringID,
		RecipientID: recipientID,
		ClaimTime:   at,
		Status:      models.ClaimStatusClaimed,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO claims(id, gathering_id, recipient_id, claim_time, status) VALUES($1,$2,$3,$4,$5)`,
		c.ID, c.GatheringID, c.RecipientID, c.ClaimTime, c.Status); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return c, nil
}

func (p *PostgresStore) Claim(ctx context.Context, id string) (*models.Claim, error) {
	var c models.Claim
	err := p.db.QueryRowContext(ctx,
		`SELECT id, gathering_id, recipient_id, claim_time, status FROM claims WHERE id=$1`, id).
		Scan(&c.ID, &c.GatheringID, &c.RecipientID, &c.ClaimTime, &c.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *PostgresStore) ClaimsByRecipient(ctx context.Context, recipientID string) ([]models.Claim, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, gathering_id, recipient_id, claim_time, status FROM claims WHERE recipient_id=$1 ORDER BY claim_time DESC`, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Claim, 0)
	for rows.Next() {
		var c models.Claim
		if err := rows.Scan(&c.ID, &c.GatheringID, &c.RecipientID, &c.ClaimTime, &c.Status); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ClaimsByGatheringIDs(ctx context.Context, gatheringIDs []string) ([]models.Claim, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, gathering_id, recipient_id, claim_time, status FROM claims WHERE gathering_id = ANY($1) ORDER BY claim_time DESC`,
		pq.Array(gatheringIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Claim, 0)
	for rows.Next() {
		var c models.Claim
		if err := rows.Scan(&c.ID, &c.GatheringID, &c.RecipientID, &c.ClaimTime, &c.Status); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateClaimStatus(ctx context.Context, claimID string, status models.ClaimStatus) (*models.Claim, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var c models.Claim
	err = tx.QueryRowContext(ctx,
		`SELECT id, gathering_id, recipient_id, claim_time, status FROM claims WHERE id=$1 FOR UPDATE`, claimID).
		Scan(&c.ID, &c.GatheringID, &c.RecipientID, &c.ClaimTime, &c.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if status == models.ClaimStatusCancelled && c.Status != models.ClaimStatusCancelled {
		if _, err := tx.ExecContext(ctx,
			`UPDATE gatherings SET is_taken=false WHERE id=$1`, c.GatheringID); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE claims SET status=$1 WHERE id=$2`, status, claimID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	c.Status = status
	return &c, nil
}
