package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fernfield/queryden/internal/catalog"
	"github.com/fernfield/queryden/internal/store"
)

var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

const seedStamp = "2026-08-01 00:00:00"

type seedData struct {
	Users []struct {
		ID    int64  `yaml:"id"`
		Login string `yaml:"login"`
		Name  string `yaml:"name"`
	} `yaml:"users"`
	Locations []struct {
		ID     int64   `yaml:"id"`
		UserID int64   `yaml:"user_id"`
		Name   string  `yaml:"name"`
		North  float64 `yaml:"north"`
		South  float64 `yaml:"south"`
		East   float64 `yaml:"east"`
		West   float64 `yaml:"west"`
	} `yaml:"locations"`
	Names []struct {
		ID         int64  `yaml:"id"`
		UserID     int64  `yaml:"user_id"`
		TextName   string `yaml:"text_name"`
		Author     string `yaml:"author"`
		Deprecated int    `yaml:"deprecated"`
	} `yaml:"names"`
	Observations []struct {
		ID                   int64   `yaml:"id"`
		UserID               int64   `yaml:"user_id"`
		LocationID           int64   `yaml:"location_id"`
		NameID               int64   `yaml:"name_id"`
		NameText             string  `yaml:"name_text"`
		Notes                string  `yaml:"notes"`
		WhenSeen             string  `yaml:"when_seen"`
		Lat                  float64 `yaml:"lat"`
		Lng                  float64 `yaml:"lng"`
		Confidence           int     `yaml:"confidence"`
		IsCollectionLocation int     `yaml:"is_collection_location"`
	} `yaml:"observations"`
	Images []struct {
		ID            int64 `yaml:"id"`
		UserID        int64 `yaml:"user_id"`
		ObservationID int64 `yaml:"observation_id"`
	} `yaml:"images"`
	LocationDescriptions []struct {
		ID         int64  `yaml:"id"`
		UserID     int64  `yaml:"user_id"`
		LocationID int64  `yaml:"location_id"`
		SourceType string `yaml:"source_type"`
	} `yaml:"location_descriptions"`
	NameDescriptions []struct {
		ID         int64  `yaml:"id"`
		UserID     int64  `yaml:"user_id"`
		NameID     int64  `yaml:"name_id"`
		SourceType string `yaml:"source_type"`
	} `yaml:"name_descriptions"`
}

// newTestEngine opens a temp store, seeds it from testdata/seed.yaml and
// returns an engine pinned to testNow.
func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	seed(t, s)

	cat, err := catalog.Load()
	require.NoError(t, err)

	eng := New(s, cat, WithNow(func() time.Time { return testNow }))
	return eng, s
}

func seed(t *testing.T, s *store.Store) {
	t.Helper()

	raw, err := os.ReadFile(filepath.Join("testdata", "seed.yaml"))
	require.NoError(t, err)
	var data seedData
	require.NoError(t, yaml.Unmarshal(raw, &data))

	db := s.DB()
	for _, u := range data.Users {
		_, err := db.Exec(
			`INSERT INTO users (id, login, name, created_at) VALUES (?, ?, ?, ?)`,
			u.ID, u.Login, u.Name, seedStamp)
		require.NoError(t, err)
	}
	for _, l := range data.Locations {
		_, err := db.Exec(
			`INSERT INTO locations (id, user_id, name, north, south, east, west, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.UserID, l.Name, l.North, l.South, l.East, l.West, seedStamp, seedStamp)
		require.NoError(t, err)
	}
	for _, n := range data.Names {
		_, err := db.Exec(
			`INSERT INTO names (id, user_id, text_name, author, deprecated, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.UserID, n.TextName, n.Author, n.Deprecated, seedStamp, seedStamp)
		require.NoError(t, err)
	}
	for _, o := range data.Observations {
		_, err := db.Exec(
			`INSERT INTO observations
			 (id, user_id, location_id, name_id, name_text, notes, when_seen,
			  lat, lng, confidence, is_collection_location, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, o.UserID, o.LocationID, o.NameID, o.NameText, o.Notes, o.WhenSeen,
			o.Lat, o.Lng, o.Confidence, o.IsCollectionLocation, seedStamp, seedStamp)
		require.NoError(t, err)
	}
	for _, img := range data.Images {
		_, err := db.Exec(
			`INSERT INTO images (id, user_id, observation_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)`,
			img.ID, img.UserID, img.ObservationID, seedStamp, seedStamp)
		require.NoError(t, err)
	}
	for _, d := range data.LocationDescriptions {
		_, err := db.Exec(
			`INSERT INTO location_descriptions (id, user_id, location_id, source_type, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			d.ID, d.UserID, d.LocationID, d.SourceType, seedStamp, seedStamp)
		require.NoError(t, err)
	}
	for _, d := range data.NameDescriptions {
		_, err := db.Exec(
			`INSERT INTO name_descriptions (id, user_id, name_id, source_type, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			d.ID, d.UserID, d.NameID, d.SourceType, seedStamp, seedStamp)
		require.NoError(t, err)
	}
}
