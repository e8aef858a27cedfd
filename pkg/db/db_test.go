package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/condopay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestDialect(t *testing.T) {
	for _, typ := range []string{"postgres", "POSTGRESQL", "mysql", "sqlite"} {
		d, err := Dialect(config.Config{DBType: typ, DBName: "condopay"})
		require.NoError(t, err, typ)
		assert.NotNil(t, d, typ)
	}

	_, err := Dialect(config.Config{DBType: "oracle"})
	assert.EqualError(t, err, `unsupported database type "oracle"`)
}

func TestMySQLDSN(t *testing.T) {
	dsn := mysqlDSN(config.Config{
		DBUser: "condo", DBPassword: "s3cret", DBHost: "db", DBPort: "3306", DBName: "condopay",
	})

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "condo", parsed.User)
	assert.Equal(t, "db:3306", parsed.Addr)
	assert.Equal(t, "condopay", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, "utf8mb4", parsed.Params["charset"])
}

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	assert.True(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsDuplicateKeyErr(&mysql.MySQLError{Number: 1062}))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: condominiums.slug")))
}

type slugRow struct {
	ID   int64
	Slug string `gorm:"uniqueIndex"`
}

func TestNewTestTranslatesDuplicates(t *testing.T) {
	conn := NewTest(t)
	require.NoError(t, conn.AutoMigrate(&slugRow{}))
	require.NoError(t, conn.Create(&slugRow{ID: 1, Slug: "aurora"}).Error)

	err := conn.Create(&slugRow{ID: 2, Slug: "aurora"}).Error
	assert.True(t, IsDuplicateKeyErr(err))
}
