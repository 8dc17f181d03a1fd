package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/conclave-ai/conclave/internal/debate"
	"github.com/conclave-ai/conclave/internal/debate/decompose"
	"github.com/conclave-ai/conclave/internal/debate/voting"
)

// PostgresRepository persists deliberations in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewPostgresRepository connects to the given DSN and ensures the schema.
func NewPostgresRepository(ctx context.Context, dsn string, log *logrus.Logger) (*PostgresRepository, error) {
	if log == nil {
		log = logrus.New()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool, log: log}
	if err := r.createTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) createTables(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS deliberation_threads (
			id VARCHAR(255) PRIMARY KEY,
			owner_id VARCHAR(255),
			question TEXT NOT NULL,
			protocol VARCHAR(50) NOT NULL,
			started_at TIMESTAMP WITH TIME ZONE NOT NULL,
			completed_at TIMESTAMP WITH TIME ZONE NOT NULL,
			decision TEXT,
			confidence DECIMAL(5,4) DEFAULT 0,
			dissent TEXT,
			intent VARCHAR(50),
			category VARCHAR(255),
			genus VARCHAR(255),
			cost DECIMAL(12,6) DEFAULT 0,
			summary TEXT
		);

		CREATE TABLE IF NOT EXISTS deliberation_turns (
			id VARCHAR(255) PRIMARY KEY,
			thread_id VARCHAR(255) NOT NULL REFERENCES deliberation_threads(id) ON DELETE CASCADE,
			round_number INT NOT NULL,
			proposal TEXT,
			proposal_model VARCHAR(255),
			revision TEXT,
			revision_model VARCHAR(255),
			decision TEXT,
			confidence DECIMAL(5,4) DEFAULT 0,
			dissent TEXT,
			summary TEXT
		);

		CREATE TABLE IF NOT EXISTS deliberation_contributions (
			id VARCHAR(255) PRIMARY KEY,
			turn_id VARCHAR(255) NOT NULL REFERENCES deliberation_turns(id) ON DELETE CASCADE,
			model_ref VARCHAR(255) NOT NULL,
			role VARCHAR(50) NOT NULL,
			framing VARCHAR(50),
			content TEXT,
			sycophantic BOOLEAN DEFAULT FALSE
		);

		CREATE TABLE IF NOT EXISTS deliberation_votes (
			id VARCHAR(255) PRIMARY KEY,
			thread_id VARCHAR(255) NOT NULL REFERENCES deliberation_threads(id) ON DELETE CASCADE,
			model_ref VARCHAR(255) NOT NULL,
			content TEXT
		);

		CREATE TABLE IF NOT EXISTS deliberation_subtasks (
			id VARCHAR(255) PRIMARY KEY,
			thread_id VARCHAR(255) NOT NULL REFERENCES deliberation_threads(id) ON DELETE CASCADE,
			label VARCHAR(255) NOT NULL,
			description TEXT,
			dependencies JSONB,
			decision TEXT,
			confidence DECIMAL(5,4) DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_deliberation_threads_owner ON deliberation_threads(owner_id);
		CREATE INDEX IF NOT EXISTS idx_deliberation_threads_completed ON deliberation_threads(completed_at);
		CREATE INDEX IF NOT EXISTS idx_deliberation_turns_thread ON deliberation_turns(thread_id);
		CREATE INDEX IF NOT EXISTS idx_deliberation_contributions_turn ON deliberation_contributions(turn_id);
		CREATE INDEX IF NOT EXISTS idx_deliberation_votes_thread ON deliberation_votes(thread_id);
		CREATE INDEX IF NOT EXISTS idx_deliberation_subtasks_thread ON deliberation_subtasks(thread_id);
	`

	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create deliberation tables: %w", err)
	}
	r.log.Info("Deliberation tables created/verified")
	return nil
}

// SaveDeliberation writes the whole record in one transaction.
func (r *PostgresRepository) SaveDeliberation(ctx context.Context, rec *debate.Record) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var intent, category, genus string
	if rec.Taxonomy != nil {
		intent = rec.Taxonomy.Intent
		category = rec.Taxonomy.Category
		genus = rec.Taxonomy.Genus
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO deliberation_threads (
			id, owner_id, question, protocol, started_at, completed_at,
			decision, confidence, dissent, intent, category, genus, cost, summary
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID, rec.OwnerID, rec.Question, string(rec.Protocol), rec.StartedAt, rec.CompletedAt,
		rec.Decision, rec.Confidence, rec.Dissent, intent, category, genus, rec.Cost,
		summarize(rec.Decision, summaryLength),
	)
	if err != nil {
		return fmt.Errorf("failed to insert thread: %w", err)
	}

	for _, round := range rec.Rounds {
		turnID := uuid.New().String()
		_, err = tx.Exec(ctx, `
			INSERT INTO deliberation_turns (
				id, thread_id, round_number, proposal, proposal_model,
				revision, revision_model, decision, confidence, dissent, summary
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			turnID, rec.ID, round.RoundNumber, round.Proposal, round.ProposalModel,
			round.Revision, round.RevisionModel, round.Decision, round.Confidence, round.Dissent,
			summarize(round.Decision, summaryLength),
		)
		if err != nil {
			return fmt.Errorf("failed to insert turn %d: %w", round.RoundNumber, err)
		}

		if err := insertContribution(ctx, tx, turnID, round.ProposalModel, "proposer", "", round.Proposal, false); err != nil {
			return err
		}
		for _, ch := range round.Challenges {
			if err := insertContribution(ctx, tx, turnID, ch.ModelRef, "challenger", string(ch.Framing), ch.Content, ch.Sycophantic); err != nil {
				return err
			}
		}
		if err := insertContribution(ctx, tx, turnID, round.RevisionModel, "reviser", "", round.Revision, false); err != nil {
			return err
		}
	}

	for _, vote := range rec.Votes {
		_, err = tx.Exec(ctx, `
			INSERT INTO deliberation_votes (id, thread_id, model_ref, content)
			VALUES ($1, $2, $3, $4)`,
			uuid.New().String(), rec.ID, vote.ModelRef, vote.Content,
		)
		if err != nil {
			return fmt.Errorf("failed to insert vote: %w", err)
		}
	}

	specs := make(map[string]decompose.SubtaskSpec, len(rec.SubtaskSpecs))
	for _, spec := range rec.SubtaskSpecs {
		specs[spec.Label] = spec
	}
	for _, sub := range rec.Subtasks {
		spec := specs[sub.Label]
		deps, err := json.Marshal(spec.Dependencies)
		if err != nil {
			return fmt.Errorf("failed to encode dependencies: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO deliberation_subtasks (id, thread_id, label, description, dependencies, decision, confidence)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New().String(), rec.ID, sub.Label, spec.Description, deps, sub.Decision, sub.Confidence,
		)
		if err != nil {
			return fmt.Errorf("failed to insert subtask %s: %w", sub.Label, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit deliberation: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"id":       rec.ID,
		"protocol": rec.Protocol,
		"rounds":   len(rec.Rounds),
	}).Debug("Deliberation saved")
	return nil
}

func insertContribution(ctx context.Context, tx pgx.Tx, turnID, modelRef, role, framing, content string, sycophantic bool) error {
	if modelRef == "" && content == "" {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO deliberation_contributions (id, turn_id, model_ref, role, framing, content, sycophantic)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), turnID, modelRef, role, framing, content, sycophantic,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s contribution: %w", role, err)
	}
	return nil
}

// GetDeliberation reconstructs a record from the relational rows.
func (r *PostgresRepository) GetDeliberation(ctx context.Context, id string) (*debate.Record, error) {
	rec := &debate.Record{}
	var protocol string
	var intent, category, genus *string

	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, question, protocol, started_at, completed_at,
			   decision, confidence, dissent, intent, category, genus, cost
		FROM deliberation_threads WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.OwnerID, &rec.Question, &protocol, &rec.StartedAt, &rec.CompletedAt,
		&rec.Decision, &rec.Confidence, &rec.Dissent, &intent, &category, &genus, &rec.Cost)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	rec.Protocol = debate.Protocol(protocol)
	if intent != nil && *intent != "" {
		rec.Taxonomy = &debate.Taxonomy{Intent: *intent}
		if category != nil {
			rec.Taxonomy.Category = *category
		}
		if genus != nil {
			rec.Taxonomy.Genus = *genus
		}
	}

	if err := r.loadRounds(ctx, rec); err != nil {
		return nil, err
	}
	if err := r.loadVotes(ctx, rec); err != nil {
		return nil, err
	}
	if err := r.loadSubtasks(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *PostgresRepository) loadRounds(ctx context.Context, rec *debate.Record) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, round_number, proposal, proposal_model, revision, revision_model,
			   decision, confidence, dissent
		FROM deliberation_turns WHERE thread_id = $1 ORDER BY round_number`, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to load turns: %w", err)
	}
	defer rows.Close()

	turnIDs := make(map[int]string)
	for rows.Next() {
		var turnID string
		var round debate.RoundResult
		if err := rows.Scan(&turnID, &round.RoundNumber, &round.Proposal, &round.ProposalModel,
			&round.Revision, &round.RevisionModel, &round.Decision, &round.Confidence, &round.Dissent); err != nil {
			return fmt.Errorf("failed to scan turn: %w", err)
		}
		turnIDs[len(rec.Rounds)] = turnID
		rec.Rounds = append(rec.Rounds, round)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate turns: %w", err)
	}

	for i := range rec.Rounds {
		crows, err := r.pool.Query(ctx, `
			SELECT model_ref, framing, content, sycophantic
			FROM deliberation_contributions WHERE turn_id = $1 AND role = 'challenger' ORDER BY id`, turnIDs[i])
		if err != nil {
			return fmt.Errorf("failed to load contributions: %w", err)
		}
		for crows.Next() {
			var ch debate.ChallengeResult
			var framing string
			if err := crows.Scan(&ch.ModelRef, &framing, &ch.Content, &ch.Sycophantic); err != nil {
				crows.Close()
				return fmt.Errorf("failed to scan contribution: %w", err)
			}
			ch.Framing = debate.Framing(framing)
			rec.Rounds[i].Challenges = append(rec.Rounds[i].Challenges, ch)
		}
		if err := crows.Err(); err != nil {
			crows.Close()
			return fmt.Errorf("failed to iterate contributions: %w", err)
		}
		crows.Close()
	}
	return nil
}

func (r *PostgresRepository) loadVotes(ctx context.Context, rec *debate.Record) error {
	rows, err := r.pool.Query(ctx, `
		SELECT model_ref, content FROM deliberation_votes WHERE thread_id = $1`, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to load votes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var vote voting.VoteResult
		if err := rows.Scan(&vote.ModelRef, &vote.Content); err != nil {
			return fmt.Errorf("failed to scan vote: %w", err)
		}
		rec.Votes = append(rec.Votes, vote)
	}
	return rows.Err()
}

func (r *PostgresRepository) loadSubtasks(ctx context.Context, rec *debate.Record) error {
	rows, err := r.pool.Query(ctx, `
		SELECT label, description, dependencies, decision, confidence
		FROM deliberation_subtasks WHERE thread_id = $1`, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to load subtasks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var spec decompose.SubtaskSpec
		var sub decompose.SubtaskResult
		var deps []byte
		if err := rows.Scan(&spec.Label, &spec.Description, &deps, &sub.Decision, &sub.Confidence); err != nil {
			return fmt.Errorf("failed to scan subtask: %w", err)
		}
		if len(deps) > 0 {
			if err := json.Unmarshal(deps, &spec.Dependencies); err != nil {
				return fmt.Errorf("failed to decode dependencies: %w", err)
			}
		}
		sub.Label = spec.Label
		rec.SubtaskSpecs = append(rec.SubtaskSpecs, spec)
		rec.Subtasks = append(rec.Subtasks, sub)
	}
	return rows.Err()
}

// ListDeliberations returns recent threads without their round detail.
func (r *PostgresRepository) ListDeliberations(ctx context.Context, ownerID string, limit int) ([]*debate.Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, owner_id, question, protocol, started_at, completed_at,
			   decision, confidence, dissent, cost
		FROM deliberation_threads`
	args := []interface{}{}
	if ownerID != "" {
		query += ` WHERE owner_id = $1 ORDER BY completed_at DESC LIMIT $2`
		args = append(args, ownerID, limit)
	} else {
		query += ` ORDER BY completed_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliberations: %w", err)
	}
	defer rows.Close()

	var out []*debate.Record
	for rows.Next() {
		rec := &debate.Record{}
		var protocol string
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Question, &protocol, &rec.StartedAt,
			&rec.CompletedAt, &rec.Decision, &rec.Confidence, &rec.Dissent, &rec.Cost); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		rec.Protocol = debate.Protocol(protocol)
		out = append(out, rec)
	}
	return out, rows.Err()
}
