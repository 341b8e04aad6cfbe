package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages record persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open creates or connects to the record database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AddRecord inserts a record and returns its id.
func (s *Store) AddRecord(ctx context.Context, rec NewRecord) (int64, error) {
	rec = rec.withDefaults(s.now())
	if rec.Name == "" {
		return 0, errors.New("record name is required")
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO records (name, fathers_name, date_of_arrest, last_seen, no_of_crimes, arrested_location)
         VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Name,
		nullableString(rec.FathersName),
		formatTime(rec.DateOfArrest),
		formatTime(rec.LastSeen),
		rec.NoOfCrimes,
		nullableString(rec.ArrestedLocation),
	)
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// AddPhoto stores a photo for recordID and returns the photo id.
func (s *Store) AddPhoto(ctx context.Context, recordID int64, data []byte) (int64, error) {
	if len(data) == 0 {
		return 0, errors.New("photo is empty")
	}
	res, err := s.execWithRetry(ctx,
		"INSERT INTO record_photos (record_id, photo) VALUES (?, ?)",
		recordID, data,
	)
	if err != nil {
		return 0, fmt.Errorf("insert photo: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

const recordColumns = "id, name, fathers_name, date_of_arrest, last_seen, no_of_crimes, arrested_location"

// GetRecord fetches a record by id. It returns ErrNotFound when absent.
func (s *Store) GetRecord(ctx context.Context, id int64) (*Record, error) {
	var rec *Record
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE id = ?", id)
		var scanErr error
		rec, scanErr = scanRecord(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record %d: %w", id, err)
	}
	return rec, nil
}

// GetRecordWithPhotos fetches a record and every stored photo.
func (s *Store) GetRecordWithPhotos(ctx context.Context, id int64) (*Record, []Photo, error) {
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	photos, err := s.photos(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return rec, photos, nil
}

func (s *Store) photos(ctx context.Context, recordID int64) ([]Photo, error) {
	var photos []Photo
	err := retryOnBusy(ctx, func() error {
		photos = photos[:0]
		rows, err := s.db.QueryContext(ctx,
			"SELECT id, record_id, photo FROM record_photos WHERE record_id = ? ORDER BY id", recordID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p Photo
			if err := rows.Scan(&p.ID, &p.RecordID, &p.Data); err != nil {
				return err
			}
			photos = append(photos, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list photos for record %d: %w", recordID, err)
	}
	return photos, nil
}

// ListRecords returns every record ordered by id.
func (s *Store) ListRecords(ctx context.Context) ([]Record, error) {
	var out []Record
	err := retryOnBusy(ctx, func() error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx, "SELECT "+recordColumns+" FROM records ORDER BY id")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			out = append(out, *rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec          Record
		fathersName  sql.NullString
		dateOfArrest sql.NullString
		lastSeen     sql.NullString
		location     sql.NullString
	)
	if err := scanner.Scan(&rec.ID, &rec.Name, &fathersName, &dateOfArrest, &lastSeen, &rec.NoOfCrimes, &location); err != nil {
		return nil, err
	}
	rec.FathersName = fathersName.String
	rec.ArrestedLocation = location.String
	var err error
	if rec.DateOfArrest, err = parseTime(dateOfArrest); err != nil {
		return nil, fmt.Errorf("parse date_of_arrest: %w", err)
	}
	if rec.LastSeen, err = parseTime(lastSeen); err != nil {
		return nil, fmt.Errorf("parse last_seen: %w", err)
	}
	return &rec, nil
}
