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
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/suite"
)

type baseTestSuite struct {
	suite.Suite
	Database
}

func (suite *baseTestSuite) SetupTest() {
	err := suite.Database.Purge()
	suite.NoError(err)
}

func (suite *baseTestSuite) TestMovies() {
	ctx := context.Background()
	movies := []Movie{
		{ItemId: "1", Title: "Toy Story (1995)", Genres: []string{"Adventure", "Animation", "Children", "Comedy", "Fantasy"}},
		{ItemId: "2", Title: "Jumanji (1995)", Genres: []string{"Adventure", "Children", "Fantasy"}},
		{ItemId: "4993", Title: "Lord of the Rings: The Fellowship of the Ring, The (2001)", Genres: []string{"Adventure", "Fantasy"}},
	}
	err := suite.Database.BatchInsertMovies(ctx, movies)
	suite.NoError(err)
	count, err := suite.Database.CountMovies(ctx)
	suite.NoError(err)
	suite.Equal(3, count)
	ret, err := suite.Database.GetMovies(ctx)
	suite.NoError(err)
	suite.Equal([]Movie{movies[0], movies[1], movies[2]}, ret)

	// overwrite movie
	err = suite.Database.BatchInsertMovies(ctx, []Movie{{ItemId: "2", Title: "Jumanji (1995)", Genres: []string{"Adventure"}}})
	suite.NoError(err)
	ret, err = suite.Database.GetMovies(ctx)
	suite.NoError(err)
	suite.Len(ret, 3)
	suite.Equal([]string{"Adventure"}, ret[1].Genres)

	// insert nothing
	err = suite.Database.BatchInsertMovies(ctx, nil)
	suite.NoError(err)
}

func (suite *baseTestSuite) TestRatings() {
	ctx := context.Background()
	timestamp := time.Date(2000, 7, 30, 18, 45, 3, 0, time.UTC)
	ratings := []Rating{
		{UserId: "1", ItemId: "1", Rating: 4, Timestamp: timestamp},
		{UserId: "1", ItemId: "3", Rating: 4, Timestamp: timestamp.Add(time.Second)},
		{UserId: "2", ItemId: "1", Rating: 2.5, Timestamp: timestamp},
		{UserId: "2", ItemId: "1", Rating: 3.5, Timestamp: timestamp.Add(time.Hour)},
	}
	err := suite.Database.BatchInsertRatings(ctx, ratings)
	suite.NoError(err)
	count, err := suite.Database.CountRatings(ctx)
	suite.NoError(err)
	suite.Equal(4, count)
	ret, err := suite.Database.GetRatings(ctx)
	suite.NoError(err)
	suite.Len(ret, 4)
	for i := range ratings {
		suite.Equal(ratings[i].UserId, ret[i].UserId)
		suite.Equal(ratings[i].ItemId, ret[i].ItemId)
		suite.Equal(ratings[i].Rating, ret[i].Rating)
		suite.True(ratings[i].Timestamp.Equal(ret[i].Timestamp))
	}

	// overwrite rating
	err = suite.Database.BatchInsertRatings(ctx, []Rating{{UserId: "1", ItemId: "1", Rating: 5, Timestamp: timestamp}})
	suite.NoError(err)
	ret, err = suite.Database.GetRatings(ctx)
	suite.NoError(err)
	suite.Len(ret, 4)
	suite.Equal(float32(5), ret[0].Rating)
}

func (suite *baseTestSuite) TestPurge() {
	ctx := context.Background()
	err := suite.Database.BatchInsertMovies(ctx, []Movie{{ItemId: "1", Title: "Toy Story (1995)", Genres: []string{}}})
	suite.NoError(err)
	err = suite.Database.BatchInsertRatings(ctx, []Rating{{UserId: "1", ItemId: "1", Rating: 4, Timestamp: time.Unix(964982703, 0).UTC()}})
	suite.NoError(err)
	err = suite.Database.Purge()
	suite.NoError(err)
	movies, err := suite.Database.GetMovies(ctx)
	suite.NoError(err)
	suite.Empty(movies)
	ratings, err := suite.Database.GetRatings(ctx)
	suite.NoError(err)
	suite.Empty(ratings)
}

func (suite *baseTestSuite) TestPing() {
	suite.NoError(suite.Database.Ping())
}

func (suite *baseTestSuite) TestUnknownDatabase() {
	_, err := Open("redis://localhost:6379", "")
	suite.True(errors.Is(err, errors.NotSupported))
}
