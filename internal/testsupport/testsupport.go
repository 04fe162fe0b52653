package testsupport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nerdvision/internal/datasource"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

func allModels() []any {
	return []any{
		&datasource.TrafficStat{},
	}
}

// SetupTestDB creates an in-memory database with all models migrated.
// Calls within the same root test share the database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager and a quiet logger
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tableNames {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateTrafficStats inserts warehouse rows for a test
func CreateTrafficStats(t *testing.T, db *gorm.DB, stats ...datasource.TrafficStat) {
	t.Helper()
	for i := range stats {
		if stats[i].Source == "" {
			stats[i].Source = "(direct)"
		}
		if stats[i].Medium == "" {
			stats[i].Medium = "(none)"
		}
		if stats[i].HasSocialReferral == "" {
			stats[i].HasSocialReferral = "No"
		}
		if stats[i].SocialNetwork == "" {
			stats[i].SocialNetwork = "(not set)"
		}
		if stats[i].Hostname == "" {
			stats[i].Hostname = "example.com"
		}
		require.NoError(t, db.Create(&stats[i]).Error)
	}
}

// ============ Fake data source ============

// FakeSource is a scripted DataSource. Responses are looked up by QueryKey;
// queries without a scripted response return an empty result.
type FakeSource struct {
	mu        sync.Mutex
	responses map[string]*datasource.Result
	errors    map[string]error
	calls     []datasource.Query
}

func NewFakeSource() *FakeSource {
	return &FakeSource{
		responses: make(map[string]*datasource.Result),
		errors:    make(map[string]error),
	}
}

// QueryKey identifies a query by its dimensions, metrics and start date
func QueryKey(dimensions, metrics []string, start string) string {
	return strings.Join(dimensions, ",") + "|" + strings.Join(metrics, ",") + "|" + start
}

// Respond scripts the rows returned for a query
func (f *FakeSource) Respond(dimensions, metrics []string, start string, rows ...[]any) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	columns := append(append([]string{}, dimensions...), metrics...)
	f.responses[QueryKey(dimensions, metrics, start)] = &datasource.Result{Columns: columns, Rows: rows}
	return f
}

// RespondRaw scripts a full result, including unusual column lists
func (f *FakeSource) RespondRaw(dimensions, metrics []string, start string, res *datasource.Result) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[QueryKey(dimensions, metrics, start)] = res
	return f
}

// Fail scripts an error for a query
func (f *FakeSource) Fail(dimensions, metrics []string, start string, err error) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[QueryKey(dimensions, metrics, start)] = err
	return f
}

func (f *FakeSource) Query(ctx context.Context, q datasource.Query) (*datasource.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", datasource.ErrUnavailable, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, q)

	key := QueryKey(q.Dimensions, q.Metrics, q.Start)
	if err, ok := f.errors[key]; ok {
		return nil, err
	}
	if res, ok := f.responses[key]; ok {
		return res, nil
	}
	return &datasource.Result{}, nil
}

// Calls returns the queries received so far
func (f *FakeSource) Calls() []datasource.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]datasource.Query(nil), f.calls...)
}
