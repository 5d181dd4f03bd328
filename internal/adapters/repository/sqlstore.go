package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aflyhorse/kmstat/internal/domain/model"
	"github.com/aflyhorse/kmstat/internal/domain/reconcile"
	"github.com/aflyhorse/kmstat/pkg/metrics"
)

// upsertBatchSize bounds how many reference rows go into one transaction.
const upsertBatchSize = 1000

// SQLStore implements Store over a SQLite database.
type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

// Open opens (creating if needed) the SQLite database at path and applies
// the schema. The returned store is safe for concurrent use.
func Open(path string, opts ...Option) (*SQLStore, error) {
	cfg := newOpenConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	if cfg.wal {
		// WAL mode for concurrent reads
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLStore{db: db}
	if cfg.migrate {
		if err := s.InitSchema(context.Background(), false); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// InitSchema applies the schema, optionally dropping all tables first.
func (s *SQLStore) InitSchema(ctx context.Context, drop bool) error {
	if drop {
		if _, err := s.db.ExecContext(ctx, dropDDL); err != nil {
			return fmt.Errorf("dropping schema: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("schema migration: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Times are stored as RFC3339 UTC strings so lexicographic comparison in SQL
// matches chronological order.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	return parseTime(ns.String)
}

// --- Players ---

func (s *SQLStore) FindOrCreatePlayer(ctx context.Context, title string) (model.Player, error) {
	p, err := s.PlayerByTitle(ctx, title)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.Player{}, err
	}

	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO players (title, join_date) VALUES (?, ?)`,
		title, fmtTime(now))
	if err != nil {
		return model.Player{}, fmt.Errorf("creating player %q: %w", title, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Player{}, err
	}
	return model.Player{ID: id, Title: title, JoinDate: now}, nil
}

func (s *SQLStore) PlayerByTitle(ctx context.Context, title string) (model.Player, error) {
	return s.scanPlayer(s.db.QueryRowContext(ctx,
		`SELECT id, title, join_date FROM players WHERE title = ?`, title))
}

func (s *SQLStore) PlayerByID(ctx context.Context, id int64) (model.Player, error) {
	return s.scanPlayer(s.db.QueryRowContext(ctx,
		`SELECT id, title, join_date FROM players WHERE id = ?`, id))
}

func (s *SQLStore) scanPlayer(row *sql.Row) (model.Player, error) {
	var p model.Player
	var join sql.NullString
	if err := row.Scan(&p.ID, &p.Title, &join); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Player{}, fmt.Errorf("player: %w", ErrNotFound)
		}
		return model.Player{}, err
	}
	p.JoinDate = nullTime(join)
	return p, nil
}

func (s *SQLStore) ListPlayers(ctx context.Context) ([]PlayerInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.title, p.join_date, COALESCE(mc.name, ''),
			(SELECT COUNT(*) FROM characters c WHERE c.player_id = p.id)
		FROM players p
		LEFT JOIN characters mc ON mc.id = p.main_character_id
		ORDER BY p.title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []PlayerInfo
	for rows.Next() {
		var info PlayerInfo
		var join sql.NullString
		if err := rows.Scan(&info.Player.ID, &info.Player.Title, &join,
			&info.MainCharacter, &info.Characters); err != nil {
			return nil, err
		}
		info.Player.JoinDate = nullTime(join)
		results = append(results, info)
	}
	return results, rows.Err()
}

func (s *SQLStore) SetPlayerMainCharacter(ctx context.Context, playerID, characterID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE players SET main_character_id = ? WHERE id = ?`, characterID, playerID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- Characters ---

func (s *SQLStore) CharacterByID(ctx context.Context, id int64) (model.Character, error) {
	return s.scanCharacter(s.db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(title, ''), join_date, COALESCE(player_id, 0)
		FROM characters WHERE id = ?`, id))
}

func (s *SQLStore) CharacterByName(ctx context.Context, name string) (model.Character, error) {
	return s.scanCharacter(s.db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(title, ''), join_date, COALESCE(player_id, 0)
		FROM characters WHERE name = ?`, name))
}

func (s *SQLStore) scanCharacter(row *sql.Row) (model.Character, error) {
	var c model.Character
	var join sql.NullString
	if err := row.Scan(&c.ID, &c.Name, &c.Title, &join, &c.PlayerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Character{}, fmt.Errorf("character: %w", ErrNotFound)
		}
		return model.Character{}, err
	}
	c.JoinDate = nullTime(join)
	return c, nil
}

// InsertCharacter stores a character. A zero ID lets SQLite assign one
// (spreadsheet-sourced characters have no ESI id).
func (s *SQLStore) InsertCharacter(ctx context.Context, c model.Character) (model.Character, error) {
	if c.JoinDate.IsZero() {
		c.JoinDate = time.Now()
	}
	var id interface{}
	if c.ID != 0 {
		id = c.ID
	}
	var playerID interface{}
	if c.PlayerID != 0 {
		playerID = c.PlayerID
	}
	var title interface{}
	if c.Title != "" {
		title = c.Title
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO characters (id, name, title, join_date, player_id) VALUES (?, ?, ?, ?, ?)`,
		id, c.Name, title, fmtTime(c.JoinDate), playerID)
	if err != nil {
		return model.Character{}, fmt.Errorf("inserting character %q: %w", c.Name, err)
	}
	if c.ID == 0 {
		newID, err := res.LastInsertId()
		if err != nil {
			return model.Character{}, err
		}
		c.ID = newID
	}
	return c, nil
}

// FindOrCreateCharacterByName resolves a spreadsheet name to a character.
// When playerTitle is non-empty, an unclaimed existing character (or a newly
// created one) is attached to that player, creating the player if needed.
func (s *SQLStore) FindOrCreateCharacterByName(ctx context.Context, name, playerTitle string) (model.Character, error) {
	c, err := s.CharacterByName(ctx, name)
	switch {
	case err == nil:
		if playerTitle != "" && c.PlayerID == 0 {
			p, err := s.FindOrCreatePlayer(ctx, playerTitle)
			if err != nil {
				return model.Character{}, err
			}
			if err := s.AssignCharacter(ctx, c.ID, p.ID); err != nil {
				return model.Character{}, err
			}
			c.PlayerID = p.ID
		}
		return c, nil
	case errors.Is(err, ErrNotFound):
		nc := model.Character{Name: name, Title: playerTitle}
		if playerTitle != "" {
			p, err := s.FindOrCreatePlayer(ctx, playerTitle)
			if err != nil {
				return model.Character{}, err
			}
			nc.PlayerID = p.ID
		}
		return s.InsertCharacter(ctx, nc)
	default:
		return model.Character{}, err
	}
}

func (s *SQLStore) AssignCharacter(ctx context.Context, characterID, playerID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE characters SET player_id = ? WHERE id = ?`, playerID, characterID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLStore) UpdateCharacterTitle(ctx context.Context, characterID int64, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE characters SET title = ? WHERE id = ?`, title, characterID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLStore) PlayerCharacters(ctx context.Context, playerID int64) ([]model.Character, error) {
	return s.queryCharacters(ctx,
		`SELECT id, name, COALESCE(title, ''), join_date, COALESCE(player_id, 0)
		FROM characters WHERE player_id = ? ORDER BY name`, playerID)
}

func (s *SQLStore) UnclaimedCharacters(ctx context.Context) ([]model.Character, error) {
	return s.queryCharacters(ctx, `
		SELECT c.id, c.name, COALESCE(c.title, ''), c.join_date, COALESCE(c.player_id, 0)
		FROM characters c
		LEFT JOIN players p ON p.id = c.player_id
		WHERE c.player_id IS NULL OR p.title = ?
		ORDER BY c.name`, model.UnclaimedTitle)
}

func (s *SQLStore) queryCharacters(ctx context.Context, query string, args ...interface{}) ([]model.Character, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.Character
	for rows.Next() {
		var c model.Character
		var join sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Title, &join, &c.PlayerID); err != nil {
			return nil, err
		}
		c.JoinDate = nullTime(join)
		results = append(results, c)
	}
	return results, rows.Err()
}

// --- Killmails ---

func (s *SQLStore) KillmailExists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM killmails WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) InsertKillmail(ctx context.Context, k model.Killmail) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO killmails
			(id, killmail_time, character_id, solar_system_id, victim_ship_type_id, total_value)
		VALUES (?, ?, ?, ?, ?, ?)`,
		k.ID, fmtTime(k.Time), k.CharacterID, k.SolarSystemID, k.VictimShipTypeID, k.TotalValue)
	if err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("inserting killmail %d: %w", k.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("killmail %d: %w", k.ID, ErrDuplicate)
	}
	return nil
}

func (s *SQLStore) LeaderboardBetween(ctx context.Context, from, to time.Time) ([]LeaderboardEntry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.title, SUM(k.total_value) AS total
		FROM killmails k
		JOIN characters c ON c.id = k.character_id
		JOIN players p ON p.id = c.player_id
		WHERE k.killmail_time >= ? AND k.killmail_time < ?
		GROUP BY p.id, p.title
		ORDER BY total DESC, p.title`,
		fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.PlayerID, &e.Title, &e.TotalValue); err != nil {
			return nil, err
		}
		e.Rank = len(results) + 1
		results = append(results, e)
	}
	return results, rows.Err()
}

func (s *SQLStore) SearchKillmails(ctx context.Context, q SearchQuery) ([]KillDetail, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	var where []string
	var args []interface{}
	if q.CharacterName != "" {
		where = append(where, "c.name = ?")
		args = append(args, q.CharacterName)
	}
	if q.PlayerTitle != "" {
		where = append(where, "p.title = ?")
		args = append(args, q.PlayerTitle)
	}
	if !q.From.IsZero() {
		where = append(where, "k.killmail_time >= ?")
		args = append(args, fmtTime(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "k.killmail_time < ?")
		args = append(args, fmtTime(q.To))
	}

	query := `
		SELECT k.id, k.killmail_time, c.name,
			COALESCE(ss.name, ''), COALESCE(it.name, ''), k.total_value
		FROM killmails k
		JOIN characters c ON c.id = k.character_id
		LEFT JOIN players p ON p.id = c.player_id
		LEFT JOIN solar_systems ss ON ss.id = k.solar_system_id
		LEFT JOIN item_types it ON it.id = k.victim_ship_type_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY k.killmail_time DESC"
	if q.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []KillDetail
	for rows.Next() {
		var d KillDetail
		var ts string
		if err := rows.Scan(&d.KillmailID, &ts, &d.CharacterName,
			&d.SystemName, &d.ShipName, &d.TotalValue); err != nil {
			return nil, err
		}
		d.Time = parseTime(ts)
		results = append(results, d)
	}
	return results, rows.Err()
}

// --- SDE reference data ---

func (s *SQLStore) UpsertSolarSystems(ctx context.Context, systems []model.SolarSystem) (int, error) {
	return s.upsertRef(ctx, "solar_systems", func(stmt *sql.Stmt, i int) (sql.Result, error) {
		return stmt.ExecContext(ctx, systems[i].ID, systems[i].Name)
	}, len(systems))
}

func (s *SQLStore) UpsertItemTypes(ctx context.Context, types []model.ItemType) (int, error) {
	return s.upsertRef(ctx, "item_types", func(stmt *sql.Stmt, i int) (sql.Result, error) {
		return stmt.ExecContext(ctx, types[i].ID, types[i].Name)
	}, len(types))
}

// upsertRef inserts reference rows in batched transactions and reports how
// many were new.
func (s *SQLStore) upsertRef(ctx context.Context, table string, exec func(*sql.Stmt, int) (sql.Result, error), total int) (int, error) {
	inserted := 0
	for offset := 0; offset < total; offset += upsertBatchSize {
		end := offset + upsertBatchSize
		if end > total {
			end = total
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return inserted, err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO `+table+` (id, name) VALUES (?, ?)`)
		if err != nil {
			tx.Rollback()
			return inserted, err
		}
		for i := offset; i < end; i++ {
			res, err := exec(stmt, i)
			if err != nil {
				stmt.Close()
				tx.Rollback()
				return inserted, fmt.Errorf("upserting into %s: %w", table, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
		stmt.Close()
		if err := tx.Commit(); err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

// --- Monthly uploads ---

func (s *SQLStore) UploadExists(ctx context.Context, year, month int) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM monthly_uploads WHERE year = ? AND month = ?`, year, month).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) UploadByMonth(ctx context.Context, year, month int) (model.MonthlyUpload, error) {
	return s.scanUpload(s.db.QueryRowContext(ctx, `
		SELECT id, year, month, upload_date, tax_rate, ore_convert_rate, uploaded_by
		FROM monthly_uploads WHERE year = ? AND month = ?`, year, month))
}

func (s *SQLStore) scanUpload(row *sql.Row) (model.MonthlyUpload, error) {
	var u model.MonthlyUpload
	var ts string
	if err := row.Scan(&u.ID, &u.Year, &u.Month, &ts, &u.TaxRate, &u.OreConvertRate, &u.UploadedBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.MonthlyUpload{}, fmt.Errorf("upload: %w", ErrNotFound)
		}
		return model.MonthlyUpload{}, err
	}
	u.UploadDate = parseTime(ts)
	return u, nil
}

func (s *SQLStore) ListUploads(ctx context.Context) ([]model.MonthlyUpload, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, year, month, upload_date, tax_rate, ore_convert_rate, uploaded_by
		FROM monthly_uploads ORDER BY year DESC, month DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.MonthlyUpload
	for rows.Next() {
		var u model.MonthlyUpload
		var ts string
		if err := rows.Scan(&u.ID, &u.Year, &u.Month, &ts, &u.TaxRate, &u.OreConvertRate, &u.UploadedBy); err != nil {
			return nil, err
		}
		u.UploadDate = parseTime(ts)
		results = append(results, u)
	}
	return results, rows.Err()
}

func (s *SQLStore) CreateUpload(ctx context.Context, u model.MonthlyUpload) (int64, error) {
	if u.UploadDate.IsZero() {
		u.UploadDate = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO monthly_uploads (year, month, upload_date, tax_rate, ore_convert_rate, uploaded_by)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.Year, u.Month, fmtTime(u.UploadDate), u.TaxRate, u.OreConvertRate, u.UploadedBy)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return 0, fmt.Errorf("upload %d-%02d: %w", u.Year, u.Month, ErrDuplicate)
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLStore) DeleteUpload(ctx context.Context, year, month int) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM monthly_uploads WHERE year = ? AND month = ?`, year, month)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLStore) InsertPAPRecords(ctx context.Context, recs []model.PAPRecord) error {
	return s.insertRecords(ctx,
		`INSERT INTO pap_records (upload_id, character_id, pap_points, strategic_pap_points) VALUES (?, ?, ?, ?)`,
		len(recs), func(stmt *sql.Stmt, i int) error {
			_, err := stmt.ExecContext(ctx, recs[i].UploadID, recs[i].CharacterID, recs[i].PAPPoints, recs[i].StrategicPAP)
			return err
		})
}

func (s *SQLStore) InsertBountyRecords(ctx context.Context, recs []model.BountyRecord) error {
	return s.insertRecords(ctx,
		`INSERT INTO bounty_records (upload_id, character_id, tax_isk) VALUES (?, ?, ?)`,
		len(recs), func(stmt *sql.Stmt, i int) error {
			_, err := stmt.ExecContext(ctx, recs[i].UploadID, recs[i].CharacterID, recs[i].TaxISK)
			return err
		})
}

func (s *SQLStore) InsertMiningRecords(ctx context.Context, recs []model.MiningRecord) error {
	return s.insertRecords(ctx,
		`INSERT INTO mining_records (upload_id, character_id, volume_m3) VALUES (?, ?, ?)`,
		len(recs), func(stmt *sql.Stmt, i int) error {
			_, err := stmt.ExecContext(ctx, recs[i].UploadID, recs[i].CharacterID, recs[i].VolumeM3)
			return err
		})
}

func (s *SQLStore) insertRecords(ctx context.Context, query string, total int, exec func(*sql.Stmt, int) error) error {
	if total == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return err
	}
	for i := 0; i < total; i++ {
		if err := exec(stmt, i); err != nil {
			stmt.Close()
			tx.Rollback()
			return err
		}
	}
	stmt.Close()
	return tx.Commit()
}

// UploadRows loads the three sheets of an upload joined with player identity
// for reconciliation.
func (s *SQLStore) UploadRows(ctx context.Context, uploadID int64) (reconcile.Rows, error) {
	var out reconcile.Rows

	const playerJoin = `
		FROM %s r
		JOIN characters c ON c.id = r.character_id
		LEFT JOIN players p ON p.id = c.player_id
		LEFT JOIN characters mc ON mc.id = p.main_character_id
		WHERE r.upload_id = ?`

	scanRef := func(id sql.NullInt64, title, mc, join sql.NullString) reconcile.PlayerRef {
		ref := reconcile.PlayerRef{}
		if id.Valid {
			ref.ID = id.Int64
			ref.Title = title.String
			ref.MainCharacter = mc.String
			ref.JoinDate = nullTime(join)
		}
		return ref
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.title, mc.name, p.join_date, r.pap_points, r.strategic_pap_points`+
			fmt.Sprintf(playerJoin, "pap_records"), uploadID)
	if err != nil {
		return out, err
	}
	for rows.Next() {
		var id sql.NullInt64
		var title, mc, join sql.NullString
		var r reconcile.PAPRow
		if err := rows.Scan(&id, &title, &mc, &join, &r.PAPPoints, &r.StrategicPAP); err != nil {
			rows.Close()
			return out, err
		}
		r.Player = scanRef(id, title, mc, join)
		out.PAP = append(out.PAP, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return out, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT p.id, p.title, mc.name, p.join_date, r.tax_isk`+
			fmt.Sprintf(playerJoin, "bounty_records"), uploadID)
	if err != nil {
		return out, err
	}
	for rows.Next() {
		var id sql.NullInt64
		var title, mc, join sql.NullString
		var r reconcile.BountyRow
		if err := rows.Scan(&id, &title, &mc, &join, &r.TaxISK); err != nil {
			rows.Close()
			return out, err
		}
		r.Player = scanRef(id, title, mc, join)
		out.Bounty = append(out.Bounty, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return out, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT p.id, p.title, mc.name, p.join_date, r.volume_m3`+
			fmt.Sprintf(playerJoin, "mining_records"), uploadID)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var id sql.NullInt64
		var title, mc, join sql.NullString
		var r reconcile.MiningRow
		if err := rows.Scan(&id, &title, &mc, &join, &r.VolumeM3); err != nil {
			return out, err
		}
		r.Player = scanRef(id, title, mc, join)
		out.Mining = append(out.Mining, r)
	}
	return out, rows.Err()
}

// --- System state ---

func (s *SQLStore) StateDate(ctx context.Context, key string) (time.Time, bool, error) {
	var val sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT date_value FROM system_state WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if !val.Valid {
		return time.Time{}, false, nil
	}
	t, err := time.Parse("2006-01-02", val.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (s *SQLStore) SetStateDate(ctx context.Context, key string, value time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_state (key, date_value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET date_value = excluded.date_value`,
		key, value.Format("2006-01-02"))
	return err
}

// --- Users ---

func (s *SQLStore) CreateUser(ctx context.Context, username, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`, username, passwordHash)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return fmt.Errorf("user %q: %w", username, ErrDuplicate)
	}
	return err
}

func (s *SQLStore) UserByUsername(ctx context.Context, username string) (model.User, error) {
	var u model.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("user: %w", ErrNotFound)
	}
	return u, err
}

func (s *SQLStore) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- Stats ---

func (s *SQLStore) Counts(ctx context.Context) (players, characters, killmails int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players`).Scan(&players); err != nil {
		return
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM characters`).Scan(&characters); err != nil {
		return
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM killmails`).Scan(&killmails)
	return
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
