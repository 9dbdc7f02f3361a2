// Copyright 2021 gorse Project Authors
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

	"github.com/gorse-io/flicks/storage"
	"github.com/juju/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB is the data storage based on MongoDB.
type MongoDB struct {
	storage.TablePrefix
	client *mongo.Client
	dbName string
}

// Init collections and indices in MongoDB.
func (db *MongoDB) Init() error {
	ctx := context.Background()
	d := db.client.Database(db.dbName)
	// list collections
	var hasMovies, hasRatings bool
	collections, err := d.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return errors.Trace(err)
	}
	for _, collectionName := range collections {
		switch collectionName {
		case db.MoviesTable():
			hasMovies = true
		case db.RatingsTable():
			hasRatings = true
		}
	}
	// create collections
	if !hasMovies {
		if err = d.CreateCollection(ctx, db.MoviesTable()); err != nil {
			return errors.Trace(err)
		}
	}
	if !hasRatings {
		if err = d.CreateCollection(ctx, db.RatingsTable()); err != nil {
			return errors.Trace(err)
		}
	}
	// create index
	_, err = d.Collection(db.RatingsTable()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "item_id", Value: 1}, {Key: "time_stamp", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Trace(err)
	}
	_, err = d.Collection(db.RatingsTable()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.M{"item_id": 1},
	})
	return errors.Trace(err)
}

func (db *MongoDB) Ping() error {
	return db.client.Ping(context.Background(), nil)
}

// Close connection to MongoDB.
func (db *MongoDB) Close() error {
	return db.client.Disconnect(context.Background())
}

// Purge removes all movies and ratings.
func (db *MongoDB) Purge() error {
	ctx := context.Background()
	d := db.client.Database(db.dbName)
	for _, collectionName := range []string{db.MoviesTable(), db.RatingsTable()} {
		if _, err := d.Collection(collectionName).DeleteMany(ctx, bson.M{}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// BatchInsertMovies inserts movies into MongoDB. Existing movies are overwritten.
func (db *MongoDB) BatchInsertMovies(ctx context.Context, movies []Movie) error {
	if len(movies) == 0 {
		return nil
	}
	start := time.Now()
	c := db.client.Database(db.dbName).Collection(db.MoviesTable())
	var models []mongo.WriteModel
	for _, movie := range movies {
		models = append(models, mongo.NewReplaceOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"_id": movie.ItemId}).
			SetReplacement(movie))
	}
	if _, err := c.BulkWrite(ctx, models); err != nil {
		return errors.Trace(err)
	}
	BatchInsertMoviesSeconds.Observe(time.Since(start).Seconds())
	return nil
}

// BatchInsertRatings inserts ratings into MongoDB. A rating with the same user, movie and timestamp
// is overwritten.
func (db *MongoDB) BatchInsertRatings(ctx context.Context, ratings []Rating) error {
	if len(ratings) == 0 {
		return nil
	}
	start := time.Now()
	c := db.client.Database(db.dbName).Collection(db.RatingsTable())
	var models []mongo.WriteModel
	for _, rating := range ratings {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{
				"user_id":    rating.UserId,
				"item_id":    rating.ItemId,
				"time_stamp": rating.Timestamp,
			}).
			SetUpdate(bson.M{"$set": bson.M{"rating": rating.Rating}}))
	}
	if _, err := c.BulkWrite(ctx, models); err != nil {
		return errors.Trace(err)
	}
	BatchInsertRatingsSeconds.Observe(time.Since(start).Seconds())
	return nil
}

func (db *MongoDB) CountMovies(ctx context.Context) (int, error) {
	n, err := db.client.Database(db.dbName).Collection(db.MoviesTable()).CountDocuments(ctx, bson.M{})
	return int(n), errors.Trace(err)
}

func (db *MongoDB) CountRatings(ctx context.Context) (int, error) {
	n, err := db.client.Database(db.dbName).Collection(db.RatingsTable()).CountDocuments(ctx, bson.M{})
	return int(n), errors.Trace(err)
}

// GetMovies returns all movies ordered by item id.
func (db *MongoDB) GetMovies(ctx context.Context) ([]Movie, error) {
	start := time.Now()
	c := db.client.Database(db.dbName).Collection(db.MoviesTable())
	r, err := c.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close(ctx)
	var movies []Movie
	for r.Next(ctx) {
		var movie Movie
		if err = r.Decode(&movie); err != nil {
			return nil, errors.Trace(err)
		}
		movies = append(movies, movie)
	}
	if err = r.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	GetMoviesSeconds.Observe(time.Since(start).Seconds())
	return movies, nil
}

// GetRatings returns all ratings ordered by user, movie and timestamp.
func (db *MongoDB) GetRatings(ctx context.Context) ([]Rating, error) {
	start := time.Now()
	c := db.client.Database(db.dbName).Collection(db.RatingsTable())
	r, err := c.Find(ctx, bson.M{}, options.Find().
		SetSort(bson.D{{Key: "user_id", Value: 1}, {Key: "item_id", Value: 1}, {Key: "time_stamp", Value: 1}}).
		SetProjection(bson.M{"_id": 0}))
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close(ctx)
	var ratings []Rating
	for r.Next(ctx) {
		var rating Rating
		if err = r.Decode(&rating); err != nil {
			return nil, errors.Trace(err)
		}
		rating.Timestamp = rating.Timestamp.In(time.UTC)
		ratings = append(ratings, rating)
	}
	if err = r.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	GetRatingsSeconds.Observe(time.Since(start).Seconds())
	return ratings, nil
}
