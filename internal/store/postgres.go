package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"haulboard/internal/model"
	"haulboard/internal/secrets"
)

// Postgres persists integrations, provider credentials, audits and alert
// deliveries. Credential blobs are sealed before they reach a row.
type Postgres struct {
	db    *sql.DB
	codec *secrets.Codec
}

func NewPostgres(dsn string, codec *secrets.Codec) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db, codec: codec}, nil
}

// MigrateDir applies every .sql file in dir in lexical order. Files are
// expected to be idempotent (IF NOT EXISTS style); there is no version table.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		sqlBytes, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(sqlBytes)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) CreateIntegration(ctx context.Context, companyID string, in model.IntegrationIn) (model.Integration, error) {
	sealed, err := p.codec.Seal(in.Credentials)
	if err != nil {
		return model.Integration{}, err
	}
	status := in.Status
	if status == "" {
		status = "active"
	}
	if status == "active" {
		var n int
		err = p.db.QueryRowContext(ctx, `SELECT count(*) FROM integrations WHERE company_id=$1 AND provider=$2 AND status='active'`, companyID, string(in.Provider)).Scan(&n)
		if err != nil {
			return model.Integration{}, err
		}
		if n > 0 {
			return model.Integration{}, ErrDuplicateIntegration
		}
	}
	id := uuid.New().String()
	_, err = p.db.ExecContext(ctx, `INSERT INTO integrations (id, company_id, provider, status, credentials_enc, created_at) VALUES ($1,$2,$3,$4,$5,now())`,
		id, companyID, string(in.Provider), status, sealed)
	if err != nil {
		return model.Integration{}, err
	}
	return model.Integration{ID: id, CompanyID: companyID, Provider: in.Provider, Status: status}, nil
}

func (p *Postgres) ListIntegrations(ctx context.Context, companyID string) ([]model.Integration, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, provider, status, COALESCE(last_error,'') FROM integrations WHERE company_id=$1 ORDER BY created_at`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Integration{}
	for rows.Next() {
		var it model.Integration
		var provider string
		if err := rows.Scan(&it.ID, &provider, &it.Status, &it.LastError); err != nil {
			return nil, err
		}
		it.CompanyID = companyID
		it.Provider = model.Provider(provider)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (p *Postgres) ListActiveIntegrations(ctx context.Context, companyID string) ([]model.Integration, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, provider, credentials_enc FROM integrations WHERE company_id=$1 AND status='active' ORDER BY created_at`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Integration{}
	for rows.Next() {
		var it model.Integration
		var provider, sealed string
		if err := rows.Scan(&it.ID, &provider, &sealed); err != nil {
			return nil, err
		}
		creds, err := p.codec.Open(sealed)
		if err != nil {
			return nil, err
		}
		it.CompanyID = companyID
		it.Provider = model.Provider(provider)
		it.Status = "active"
		it.Credentials = creds
		out = append(out, it)
	}
	return out, rows.Err()
}

func (p *Postgres) ListAllActiveIntegrations(ctx context.Context) ([]model.Integration, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, company_id, provider, credentials_enc FROM integrations WHERE status='active' ORDER BY company_id, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Integration{}
	for rows.Next() {
		var it model.Integration
		var provider, sealed string
		if err := rows.Scan(&it.ID, &it.CompanyID, &provider, &sealed); err != nil {
			return nil, err
		}
		creds, err := p.codec.Open(sealed)
		if err != nil {
			return nil, err
		}
		it.Provider = model.Provider(provider)
		it.Status = "active"
		it.Credentials = creds
		out = append(out, it)
	}
	return out, rows.Err()
}

func (p *Postgres) GetIntegration(ctx context.Context, companyID, id string) (model.Integration, error) {
	var it model.Integration
	var provider, sealed string
	err := p.db.QueryRowContext(ctx, `SELECT id::text, provider, status, COALESCE(last_error,''), credentials_enc FROM integrations WHERE company_id=$1 AND id=$2`,
		companyID, id).Scan(&it.ID, &provider, &it.Status, &it.LastError, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Integration{}, ErrNotFound
	}
	if err != nil {
		return model.Integration{}, err
	}
	creds, err := p.codec.Open(sealed)
	if err != nil {
		return model.Integration{}, err
	}
	it.CompanyID = companyID
	it.Provider = model.Provider(provider)
	it.Credentials = creds
	return it, nil
}

func (p *Postgres) SetIntegrationStatus(ctx context.Context, companyID, id, status, lastError string) (model.Integration, error) {
	if status == "active" {
		var n int
		err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM integrations a JOIN integrations b ON a.provider=b.provider AND a.company_id=b.company_id WHERE a.company_id=$1 AND a.id=$2 AND b.id<>$2 AND b.status='active'`, companyID, id).Scan(&n)
		if err != nil {
			return model.Integration{}, err
		}
		if n > 0 {
			return model.Integration{}, ErrDuplicateIntegration
		}
	}
	res, err := p.db.ExecContext(ctx, `UPDATE integrations SET status=$3, last_error=$4 WHERE company_id=$1 AND id=$2`, companyID, id, status, lastError)
	if err != nil {
		return model.Integration{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Integration{}, ErrNotFound
	}
	var it model.Integration
	var provider string
	err = p.db.QueryRowContext(ctx, `SELECT id::text, provider, status, COALESCE(last_error,'') FROM integrations WHERE company_id=$1 AND id=$2`, companyID, id).
		Scan(&it.ID, &provider, &it.Status, &it.LastError)
	if err != nil {
		return model.Integration{}, err
	}
	it.CompanyID = companyID
	it.Provider = model.Provider(provider)
	return it, nil
}

func (p *Postgres) DeleteIntegration(ctx context.Context, companyID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM integrations WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetGlobalCredential(ctx context.Context, provider model.Provider, key, value string) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO provider_credentials (provider, key, value) VALUES ($1,$2,$3)
        ON CONFLICT (provider, key) DO UPDATE SET value=EXCLUDED.value`, string(provider), key, value)
	return err
}

func (p *Postgres) GetGlobalCredential(ctx context.Context, provider model.Provider, key string) (string, error) {
	var v string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM provider_credentials WHERE provider=$1 AND key=$2`, string(provider), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}

func (p *Postgres) RecordFetchAudit(ctx context.Context, audit model.FetchAudit) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO fetch_audits (company_id, provider, count, error, millis, ts) VALUES ($1,$2,$3,$4,$5,$6)`,
		audit.CompanyID, string(audit.Provider), audit.Count, audit.Error, audit.Millis, audit.TS)
	return err
}

func (p *Postgres) ListFetchAudits(ctx context.Context, companyID string, since time.Time, limit int) ([]model.FetchAudit, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `SELECT provider, count, COALESCE(error,''), millis, ts::text FROM fetch_audits WHERE company_id=$1 AND ts >= $2 ORDER BY ts DESC LIMIT $3`,
		companyID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.FetchAudit{}
	for rows.Next() {
		var a model.FetchAudit
		var provider string
		if err := rows.Scan(&provider, &a.Count, &a.Error, &a.Millis, &a.TS); err != nil {
			return nil, err
		}
		a.CompanyID = companyID
		a.Provider = model.Provider(provider)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, company_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		id, req.CompanyID, req.URL, strings.Join(req.Events, ","), req.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, CompanyID: req.CompanyID, URL: req.URL, Events: req.Events}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, companyID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, events, secret FROM subscriptions WHERE company_id=$1`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events string
		if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil {
			return nil, err
		}
		s.CompanyID = companyID
		s.Events = splitEvents(events)
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, companyID string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, events FROM subscriptions WHERE company_id=$1`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events string
		if err := rows.Scan(&s.ID, &s.URL, &events); err != nil {
			return nil, err
		}
		s.CompanyID = companyID
		s.Events = splitEvents(events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, companyID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueAlert(ctx context.Context, companyID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO alert_deliveries (id, company_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`,
		id, companyID, subscriptionID, eventType, url, secret, payload)
	return id, err
}

func (p *Postgres) FetchDueAlertDeliveries(ctx context.Context, limit int) ([]AlertDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, company_id, subscription_id::text, event_type, url, secret, payload, status, attempts
        FROM alert_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []AlertDelivery{}
	for rows.Next() {
		var d AlertDelivery
		if err := rows.Scan(&d.ID, &d.CompanyID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkAlertDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE alert_deliveries SET status='delivered', attempts=attempts+1, response_code=$2, latency_ms=$3, delivered_at=now() WHERE id=$1`,
			id, responseCode, latencyMs)
		return err
	}
	next := time.Now().Add(1 * time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx, `UPDATE alert_deliveries SET status='retry', attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4, next_attempt_at=$5 WHERE id=$1`,
		id, lastError, responseCode, latencyMs, next)
	return err
}

func (p *Postgres) FailAlertDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE alert_deliveries SET status='failed', attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, lastError, responseCode, latencyMs)
	return err
}

func (p *Postgres) ListAlertDeliveries(ctx context.Context, companyID, status string, limit int) ([]map[string]any, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, event_type, url, status, attempts, COALESCE(last_error,''), COALESCE(response_code,0), COALESCE(latency_ms,0)
            FROM alert_deliveries WHERE company_id=$1 AND status=$2 ORDER BY next_attempt_at DESC LIMIT $3`, companyID, status, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, event_type, url, status, attempts, COALESCE(last_error,''), COALESCE(response_code,0), COALESCE(latency_ms,0)
            FROM alert_deliveries WHERE company_id=$1 ORDER BY next_attempt_at DESC LIMIT $2`, companyID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		var id, eventType, url, st, lastErr string
		var attempts, code, latency int
		if err := rows.Scan(&id, &eventType, &url, &st, &attempts, &lastErr, &code, &latency); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"id": id, "eventType": eventType, "url": url, "status": st,
			"attempts": attempts, "lastError": lastErr, "responseCode": code, "latencyMs": latency,
		})
	}
	return out, rows.Err()
}

func splitEvents(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
