package datamart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is the logical data mart layout. Staging is append-only, dimensions
// are natural-keyed, the fact table carries the (period, entity, service)
// uniqueness invariant.
const schema = `
CREATE SCHEMA IF NOT EXISTS ida;

CREATE TABLE IF NOT EXISTS ida.staging_ida (
	seq           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	ano           INT NOT NULL,
	mes           INT NOT NULL CHECK (mes BETWEEN 1 AND 12),
	ano_mes       TEXT NOT NULL,
	servico       TEXT NOT NULL,
	grupo_raw     TEXT NOT NULL,
	variavel      TEXT NOT NULL,
	valor         DOUBLE PRECISION NOT NULL,
	arquivo_origem TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ida.dim_tempo (
	ano_mes   TEXT PRIMARY KEY,
	ano       INT NOT NULL,
	mes       INT NOT NULL,
	trimestre INT NOT NULL,
	semestre  INT NOT NULL
);

CREATE TABLE IF NOT EXISTS ida.dim_grupo_economico (
	nome_grupo TEXT PRIMARY KEY,
	ativo      BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS ida.dim_servico (
	codigo_servico TEXT PRIMARY KEY,
	nome_servico   TEXT NOT NULL,
	categoria      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ida.fato_ida (
	ano_mes               TEXT NOT NULL REFERENCES ida.dim_tempo (ano_mes),
	nome_grupo            TEXT NOT NULL REFERENCES ida.dim_grupo_economico (nome_grupo),
	codigo_servico        TEXT NOT NULL REFERENCES ida.dim_servico (codigo_servico),
	taxa_resolvidas_5dias DOUBLE PRECISION NOT NULL,
	taxa_resolvidas_total DOUBLE PRECISION NOT NULL,
	total_solicitacoes    BIGINT NOT NULL,
	solicitacoes_resolvidas BIGINT NOT NULL,
	PRIMARY KEY (ano_mes, nome_grupo, codigo_servico)
);
`

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	log       *slog.Logger
	pool      *pgxpool.Pool
	chunkSize int
}

// PostgresConfig carries the coordinates and tuning for the Postgres store.
type PostgresConfig struct {
	DSN       string
	ChunkSize int
	Logger    *slog.Logger
}

func (cfg *PostgresConfig) validate() error {
	if cfg.DSN == "" {
		return errors.New("dsn is required")
	}
	return nil
}

// NewPostgresStore connects the pool and ensures the data mart schema exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{log: cfg.Logger, pool: pool, chunkSize: cfg.ChunkSize}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendObservations(ctx context.Context, records []ObservationRecord) (int, error) {
	total := 0
	for start := 0; start < len(records); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		n, err := s.pool.CopyFrom(ctx,
			pgx.Identifier{"ida", "staging_ida"},
			[]string{"ano", "mes", "ano_mes", "servico", "grupo_raw", "variavel", "valor", "arquivo_origem"},
			pgx.CopyFromSlice(len(chunk), func(i int) ([]any, error) {
				r := chunk[i]
				return []any{r.Year, r.Month, r.PeriodKey, r.ServiceCode, r.EntityRaw, r.Variable, r.Value, r.SourceFile}, nil
			}),
		)
		if err != nil {
			return total, fmt.Errorf("copy staging chunk: %w", err)
		}
		total += int(n)
		s.log.Debug("staging chunk appended", "rows", n, "total", total)
	}
	return total, nil
}

func (s *PostgresStore) TruncateStaging(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE TABLE ida.staging_ida RESTART IDENTITY`); err != nil {
		return fmt.Errorf("truncate staging: %w", err)
	}
	return nil
}

func (s *PostgresStore) Observations(ctx context.Context) ([]ObservationRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, ano, mes, ano_mes, servico, grupo_raw, variavel, valor, arquivo_origem
		FROM ida.staging_ida
		ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query staging: %w", err)
	}
	defer rows.Close()

	var out []ObservationRecord
	for rows.Next() {
		var r ObservationRecord
		if err := rows.Scan(&r.Seq, &r.Year, &r.Month, &r.PeriodKey, &r.ServiceCode,
			&r.EntityRaw, &r.Variable, &r.Value, &r.SourceFile); err != nil {
			return nil, fmt.Errorf("scan staging row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertPeriods(ctx context.Context, periods []Period) (int, error) {
	inserted := 0
	for _, p := range periods {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO ida.dim_tempo (ano_mes, ano, mes, trimestre, semestre)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (ano_mes) DO NOTHING`,
			p.PeriodKey, p.Year, p.Month, p.Quarter, p.Half)
		if err != nil {
			return inserted, fmt.Errorf("upsert period %s: %w", p.PeriodKey, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *PostgresStore) UpsertEntities(ctx context.Context, entities []Entity) (int, error) {
	inserted := 0
	for _, e := range entities {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO ida.dim_grupo_economico (nome_grupo, ativo)
			VALUES ($1, $2)
			ON CONFLICT (nome_grupo) DO NOTHING`,
			e.CanonicalName, e.Active)
		if err != nil {
			return inserted, fmt.Errorf("upsert entity %s: %w", e.CanonicalName, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *PostgresStore) UpsertServices(ctx context.Context, services []Service) (int, error) {
	inserted := 0
	for _, svc := range services {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO ida.dim_servico (codigo_servico, nome_servico, categoria)
			VALUES ($1, $2, $3)
			ON CONFLICT (codigo_servico) DO NOTHING`,
			svc.Code, svc.DisplayName, svc.Category)
		if err != nil {
			return inserted, fmt.Errorf("upsert service %s: %w", svc.Code, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *PostgresStore) Periods(ctx context.Context) ([]Period, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ano_mes, ano, mes, trimestre, semestre
		FROM ida.dim_tempo ORDER BY ano_mes`)
	if err != nil {
		return nil, fmt.Errorf("query periods: %w", err)
	}
	defer rows.Close()

	var out []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.PeriodKey, &p.Year, &p.Month, &p.Quarter, &p.Half); err != nil {
			return nil, fmt.Errorf("scan period: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Entities(ctx context.Context) ([]Entity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT nome_grupo, ativo FROM ida.dim_grupo_economico ORDER BY nome_grupo`)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.CanonicalName, &e.Active); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Services(ctx context.Context) ([]Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT codigo_servico, nome_servico, categoria FROM ida.dim_servico ORDER BY codigo_servico`)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.Code, &svc.DisplayName, &svc.Category); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// ReplaceFacts swaps the whole fact relation inside one transaction. On any
// failure the transaction rolls back and the prior contents stay committed.
func (s *PostgresStore) ReplaceFacts(ctx context.Context, facts []FactMetric) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin fact replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM ida.fato_ida`); err != nil {
		return fmt.Errorf("clear facts: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"ida", "fato_ida"},
		[]string{"ano_mes", "nome_grupo", "codigo_servico", "taxa_resolvidas_5dias",
			"taxa_resolvidas_total", "total_solicitacoes", "solicitacoes_resolvidas"},
		pgx.CopyFromSlice(len(facts), func(i int) ([]any, error) {
			f := facts[i]
			return []any{f.PeriodKey, f.EntityName, f.ServiceCode, f.RateResolved5D,
				f.RateResolvedTotal, f.TotalRequests, f.ResolvedRequests}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("insert facts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit fact replace: %w", err)
	}
	s.log.Info("fact relation replaced", "rows", len(facts))
	return nil
}

func (s *PostgresStore) Facts(ctx context.Context) ([]FactMetric, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ano_mes, nome_grupo, codigo_servico, taxa_resolvidas_5dias,
		       taxa_resolvidas_total, total_solicitacoes, solicitacoes_resolvidas
		FROM ida.fato_ida
		ORDER BY ano_mes, nome_grupo, codigo_servico`)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var out []FactMetric
	for rows.Next() {
		var f FactMetric
		if err := rows.Scan(&f.PeriodKey, &f.EntityName, &f.ServiceCode, &f.RateResolved5D,
			&f.RateResolvedTotal, &f.TotalRequests, &f.ResolvedRequests); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
