package meshaide

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"meshfail/configs"
	"meshfail/network"
)

// PostgresAide is a production MeshAide backed by a `site_txn_watermark`
// table, grounded on the teacher's storage/postgres.go SQLDB: same
// pgxpool.Pool, same mustExec-on-connect table bootstrap ("fatal if it
// fails" DDL). There is no best-effort tryExec counterpart here.
type PostgresAide struct {
	ctx  context.Context
	pool *pgxpool.Pool
}

// NewPostgresAide connects to dsn and ensures the watermark table exists.
func NewPostgresAide(dsn string) (*PostgresAide, error) {
	ctx := context.Background()
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	a := &PostgresAide{ctx: ctx, pool: pool}
	a.mustExec("CREATE TABLE IF NOT EXISTS site_txn_watermark (" +
		"site BIGINT PRIMARY KEY, safe_txn_id BIGINT NOT NULL)")
	return a, nil
}

func (a *PostgresAide) mustExec(sql string) {
	_, err := a.pool.Exec(a.ctx, sql)
	configs.CheckError(err)
}

func (a *PostgresAide) NewestSafeTransactionForInitiator(site network.HSID) (int64, bool) {
	var txn int64
	err := a.pool.QueryRow(a.ctx,
		"SELECT safe_txn_id FROM site_txn_watermark WHERE site = $1", uint64(site)).Scan(&txn)
	if err == pgx.ErrNoRows {
		return 0, false
	}
	configs.CheckError(err)
	return txn, true
}

// RecordWatermark persists the newest safe transaction id seen for site,
// called by the caller once it observes transactions completing against it.
func (a *PostgresAide) RecordWatermark(site network.HSID, txn int64) {
	_, err := a.pool.Exec(a.ctx,
		"INSERT INTO site_txn_watermark (site, safe_txn_id) VALUES ($1, $2) "+
			"ON CONFLICT (site) DO UPDATE SET safe_txn_id = GREATEST(site_txn_watermark.safe_txn_id, $2)",
		uint64(site), txn)
	configs.CheckError(err)
}

// SendHeartbeats is a best-effort liveness touch: each site's row timestamp
// would be bumped in a fuller deployment, but the watermark table itself
// carries no liveness column, so this simply logs the ping set for
// diagnostics.
func (a *PostgresAide) SendHeartbeats(hsIds []network.HSID) {
	ids := make([]string, len(hsIds))
	for i, h := range hsIds {
		ids[i] = strconv.FormatUint(uint64(h), 10)
	}
	configs.ArbPrintf(0, "heartbeat to %v", ids)
}
