// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package data

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorse-io/flicks/storage"
	"github.com/stretchr/testify/suite"
)

var (
	mySqlDSN      string
	postgresDSN   string
	clickhouseDSN string
)

func init() {
	mySqlDSN = os.Getenv("MYSQL_URI")
	postgresDSN = os.Getenv("POSTGRES_URI")
	clickhouseDSN = os.Getenv("CLICKHOUSE_URI")
}

type SQLiteTestSuite struct {
	baseTestSuite
}

func (suite *SQLiteTestSuite) SetupSuite() {
	var err error
	path := filepath.Join(suite.T().TempDir(), "sqlite.db")
	suite.Database, err = Open(storage.SQLitePrefix+path, "flicks_")
	suite.NoError(err)
	err = suite.Database.Init()
	suite.NoError(err)
}

func (suite *SQLiteTestSuite) TearDownSuite() {
	suite.NoError(suite.Database.Close())
}

func TestSQLite(t *testing.T) {
	suite.Run(t, new(SQLiteTestSuite))
}

type MySQLTestSuite struct {
	baseTestSuite
}

func (suite *MySQLTestSuite) SetupSuite() {
	// create database
	databaseComm, err := sql.Open("mysql", mySqlDSN[len(storage.MySQLPrefix):])
	suite.NoError(err)
	const dbName = "flicks_data_test"
	_, err = databaseComm.Exec("DROP DATABASE IF EXISTS " + dbName)
	suite.NoError(err)
	_, err = databaseComm.Exec("CREATE DATABASE " + dbName)
	suite.NoError(err)
	suite.NoError(databaseComm.Close())
	// connect database
	suite.Database, err = Open(mySqlDSN+dbName, "flicks_")
	suite.NoError(err)
	suite.NoError(suite.Database.Init())
}

func (suite *MySQLTestSuite) TearDownSuite() {
	suite.NoError(suite.Database.Close())
}

func TestMySQL(t *testing.T) {
	if mySqlDSN == "" {
		t.Skip("MYSQL_URI is not set")
	}
	suite.Run(t, new(MySQLTestSuite))
}

type PostgresTestSuite struct {
	baseTestSuite
}

func (suite *PostgresTestSuite) SetupSuite() {
	// create database
	databaseComm, err := sql.Open("postgres", postgresDSN+"?sslmode=disable")
	suite.NoError(err)
	const dbName = "flicks_data_test"
	_, err = databaseComm.Exec("DROP DATABASE IF EXISTS " + dbName)
	suite.NoError(err)
	_, err = databaseComm.Exec("CREATE DATABASE " + dbName)
	suite.NoError(err)
	suite.NoError(databaseComm.Close())
	// connect database
	suite.Database, err = Open(postgresDSN+strings.ToLower(dbName)+"?sslmode=disable", "flicks_")
	suite.NoError(err)
	suite.NoError(suite.Database.Init())
}

func (suite *PostgresTestSuite) TearDownSuite() {
	suite.NoError(suite.Database.Close())
}

func TestPostgres(t *testing.T) {
	if postgresDSN == "" {
		t.Skip("POSTGRES_URI is not set")
	}
	suite.Run(t, new(PostgresTestSuite))
}

type ClickHouseTestSuite struct {
	baseTestSuite
}

func (suite *ClickHouseTestSuite) SetupSuite() {
	// create database
	databaseComm, err := sql.Open("chhttp", "http://"+clickhouseDSN[len(storage.ClickhousePrefix):])
	suite.NoError(err)
	const dbName = "flicks_data_test"
	_, err = databaseComm.Exec("DROP DATABASE IF EXISTS " + dbName)
	suite.NoError(err)
	_, err = databaseComm.Exec("CREATE DATABASE " + dbName)
	suite.NoError(err)
	suite.NoError(databaseComm.Close())
	// connect database
	suite.Database, err = Open(clickhouseDSN+dbName+"?mutations_sync=2", "flicks_")
	suite.NoError(err)
	suite.NoError(suite.Database.Init())
}

func (suite *ClickHouseTestSuite) TearDownSuite() {
	suite.NoError(suite.Database.Close())
}

func TestClickHouse(t *testing.T) {
	if clickhouseDSN == "" {
		t.Skip("CLICKHOUSE_URI is not set")
	}
	suite.Run(t, new(ClickHouseTestSuite))
}
