package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/db"
	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/models"
)

const sampleToml = `
VERSION = "2.0.0"

[[CURRENCIES]]
code = "SSQ01"
issuer = "GISSUER1"
name = "Quest 1"
desc = "第一关的徽章"
image = "https://quest.example/ssq01.png"

[[CURRENCIES]]
code = "SSQ02"
issuer = "GISSUER1"
name = "Quest 2"

[[CURRENCIES]]
code = ""
issuer = "GISSUER1"
`

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbConn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(dbConn))
	return dbConn
}

func TestParseTomlFilesImportsNewBadges(t *testing.T) {
	dbConn := testDB(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleToml)
	}))
	defer srv.Close()

	require.NoError(t, ParseTomlFiles(context.Background(), dbConn, []string{srv.URL}))

	// 空 code 的条目被跳过
	var badges []models.Badge
	require.NoError(t, dbConn.Order("code asc").Find(&badges).Error)
	require.Len(t, badges, 2)
	assert.Equal(t, "SSQ01", badges[0].Code)
	assert.Equal(t, "Quest 1", badges[0].DescriptionShort)
	assert.Equal(t, "第一关的徽章", badges[0].DescriptionLong)
	assert.Equal(t, "https://quest.example/ssq01.png", badges[0].Image)
	assert.True(t, badges[0].Current)
	assert.NotEmpty(t, badges[0].IssueDate)
}

func TestParseTomlFilesRerunIsIdempotent(t *testing.T) {
	dbConn := testDB(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleToml)
	}))
	defer srv.Close()

	require.NoError(t, ParseTomlFiles(context.Background(), dbConn, []string{srv.URL}))
	require.NoError(t, ParseTomlFiles(context.Background(), dbConn, []string{srv.URL}))

	var count int64
	dbConn.Model(&models.Badge{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestParseTomlFilesBrokenRegistryDoesNotBlockOthers(t *testing.T) {
	dbConn := testDB(t)
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleToml)
	}))
	defer good.Close()

	require.NoError(t, ParseTomlFiles(context.Background(), dbConn, []string{bad.URL, good.URL}))

	var count int64
	dbConn.Model(&models.Badge{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestParseTomlFilesInvalidTomlIsLoggedNotFatal(t *testing.T) {
	dbConn := testDB(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not [ valid toml ===")
	}))
	defer srv.Close()

	require.NoError(t, ParseTomlFiles(context.Background(), dbConn, []string{srv.URL}))

	var count int64
	dbConn.Model(&models.Badge{}).Count(&count)
	assert.Equal(t, int64(0), count)
}
