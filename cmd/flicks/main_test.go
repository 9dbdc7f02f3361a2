// Copyright 2022 gorse Project Authors
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
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorse-io/flicks/base/log"
	"github.com/gorse-io/flicks/dataset"
	"github.com/gorse-io/flicks/storage/data"
	"github.com/juju/errors"
	"github.com/stretchr/testify/suite"
)

const (
	testMovies = `movieId,title,genres
1,Alpha (2001),Action
2,Beta (2002),Comedy|Drama
3,Gamma (2003),Drama
`
	testRatings = `userId,movieId,rating,timestamp
1,1,5,964982703
1,3,3,964982703
2,2,5,964982703
2,3,1,964982703
3,1,1,964982703
3,2,5,964982703
4,1,2,964982703
4,2,4,964982703
`
)

type CommandTestSuite struct {
	suite.Suite
	dir        string
	configPath string
}

func (suite *CommandTestSuite) SetupTest() {
	log.CloseLogger()
	suite.dir = suite.T().TempDir()
	moviePath := filepath.Join(suite.dir, "movies.csv")
	ratingPath := filepath.Join(suite.dir, "ratings.csv")
	suite.NoError(os.WriteFile(moviePath, []byte(testMovies), 0644))
	suite.NoError(os.WriteFile(ratingPath, []byte(testRatings), 0644))
	suite.NoError(os.WriteFile(filepath.Join(suite.dir, "query.json"), []byte(`{"Alpha (2001)": 5, "Beta (2002)": 1}`), 0644))
	suite.configPath = filepath.Join(suite.dir, "config.toml")
	suite.writeConfig("")
}

func (suite *CommandTestSuite) writeConfig(dataStore string) {
	content := fmt.Sprintf(`[database]
data_store = %q

[dataset]
movie_path = %q
rating_path = %q

[blob]
type = "posix"
dir = %q

[recommend]
jobs = 2

[nmf]
n_factors = 2
n_epochs = 50
`, dataStore, filepath.Join(suite.dir, "movies.csv"), filepath.Join(suite.dir, "ratings.csv"), filepath.Join(suite.dir, "models"))
	suite.NoError(os.WriteFile(suite.configPath, []byte(content), 0644))
}

func (suite *CommandTestSuite) execute(args ...string) (string, error) {
	buf := bytes.NewBuffer(nil)
	rootCommand.SetOut(buf)
	rootCommand.SetErr(bytes.NewBuffer(nil))
	rootCommand.SetArgs(append(args, "--config", suite.configPath))
	err := rootCommand.Execute()
	return buf.String(), err
}

func (suite *CommandTestSuite) TestRecommendNeighborhood() {
	output, err := suite.execute("recommend", "--method", "neighborhood",
		"--query", filepath.Join(suite.dir, "query.json"), "-k", "2", "-n", "1", "--normalize=true")
	suite.NoError(err)
	suite.Contains(output, "Gamma (2003)")
	suite.NotContains(output, "Alpha (2001)")

	_, err = suite.execute("recommend", "--method", "popularity",
		"--query", filepath.Join(suite.dir, "query.json"), "-k", "2", "-n", "1", "--normalize=true")
	suite.True(errors.Is(err, errors.NotSupported))
}

func (suite *CommandTestSuite) TestFitAndRecommend() {
	// no model yet
	_, err := suite.execute("recommend", "--method", "factorization",
		"--query", filepath.Join(suite.dir, "query.json"), "-k", "2", "-n", "2", "--normalize=true")
	suite.True(errors.Is(err, errors.NotFound))

	_, err = suite.execute("fit")
	suite.NoError(err)
	suite.FileExists(filepath.Join(suite.dir, "models", "nmf_29_42_1111"))

	output, err := suite.execute("recommend", "--method", "factorization",
		"--query", filepath.Join(suite.dir, "query.json"), "-k", "2", "-n", "2", "--normalize=true")
	suite.NoError(err)
	suite.Contains(output, "Gamma (2003)")
	suite.NotContains(output, "Beta (2002)")
}

func (suite *CommandTestSuite) TestImport() {
	dataStore := "sqlite://" + filepath.Join(suite.dir, "data.db")
	suite.writeConfig(dataStore)
	_, err := suite.execute("import", "--batch-size", "3")
	suite.NoError(err)

	database, err := data.Open(dataStore, "")
	suite.NoError(err)
	defer database.Close()
	d, err := dataset.LoadDatabase(context.Background(), database)
	suite.NoError(err)
	suite.Equal([]string{"Alpha (2001)", "Beta (2002)", "Gamma (2003)"}, d.Titles())
	suite.Equal(8, d.CountRatings())

	// recommend from the data store
	output, err := suite.execute("recommend", "--method", "neighborhood",
		"--query", filepath.Join(suite.dir, "query.json"), "-k", "2", "-n", "1", "--normalize=true")
	suite.NoError(err)
	suite.Contains(output, "Gamma (2003)")

	suite.writeConfig("")
	_, err = suite.execute("import", "--batch-size", "3")
	suite.True(errors.Is(err, errors.NotValid))
}

func (suite *CommandTestSuite) TestVersion() {
	output, err := suite.execute("version")
	suite.NoError(err)
	suite.Contains(output, "API version")
}

func TestCommand(t *testing.T) {
	suite.Run(t, new(CommandTestSuite))
}
