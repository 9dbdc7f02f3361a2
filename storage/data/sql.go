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
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gorse-io/flicks/storage"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	_ "github.com/mailru/go-clickhouse/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	_ "modernc.org/sqlite"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
	ClickHouse
)

// SQLMovie is the row of the movies table. Genres are stored as a JSON array.
type SQLMovie struct {
	ItemId string `gorm:"column:item_id"`
	Title  string `gorm:"column:title"`
	Genres string `gorm:"column:genres"`
}

// SQLRating is the row of the ratings table.
type SQLRating struct {
	UserId    string    `gorm:"column:user_id"`
	ItemId    string    `gorm:"column:item_id"`
	Rating    float32   `gorm:"column:rating"`
	Timestamp time.Time `gorm:"column:time_stamp"`
}

// SQLDatabase use MySQL, Postgres, SQLite or ClickHouse as data storage.
type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver SQLDriver
}

// Init tables and indices.
func (d *SQLDatabase) Init() error {
	switch d.driver {
	case MySQL:
		type Movies struct {
			ItemId string `gorm:"column:item_id;type:varchar(256) not null;primaryKey"`
			Title  string `gorm:"column:title;type:varchar(512) not null;index:title"`
			Genres string `gorm:"column:genres;type:json not null"`
		}
		type Ratings struct {
			UserId    string    `gorm:"column:user_id;type:varchar(256) not null;primaryKey"`
			ItemId    string    `gorm:"column:item_id;type:varchar(256) not null;primaryKey;index:item_id"`
			Timestamp time.Time `gorm:"column:time_stamp;type:datetime not null;primaryKey"`
			Rating    float32   `gorm:"column:rating;type:float not null"`
		}
		if err := d.gormDB.Set("gorm:table_options", "ENGINE=InnoDB").Table(d.MoviesTable()).AutoMigrate(Movies{}); err != nil {
			return errors.Trace(err)
		}
		if err := d.gormDB.Set("gorm:table_options", "ENGINE=InnoDB").Table(d.RatingsTable()).AutoMigrate(Ratings{}); err != nil {
			return errors.Trace(err)
		}
	case Postgres:
		type Movies struct {
			ItemId string `gorm:"column:item_id;type:varchar(256) not null;primaryKey"`
			Title  string `gorm:"column:title;type:text not null"`
			Genres string `gorm:"column:genres;type:json not null default '[]'"`
		}
		type Ratings struct {
			UserId    string    `gorm:"column:user_id;type:varchar(256) not null;primaryKey"`
			ItemId    string    `gorm:"column:item_id;type:varchar(256) not null;primaryKey"`
			Timestamp time.Time `gorm:"column:time_stamp;type:timestamptz not null default '0001-01-01';primaryKey"`
			Rating    float32   `gorm:"column:rating;type:real not null"`
		}
		if err := d.gormDB.Table(d.MoviesTable()).AutoMigrate(Movies{}); err != nil {
			return errors.Trace(err)
		}
		if err := d.gormDB.Table(d.RatingsTable()).AutoMigrate(Ratings{}); err != nil {
			return errors.Trace(err)
		}
	case SQLite:
		type Movies struct {
			ItemId string `gorm:"column:item_id;type:varchar(256);not null;primaryKey"`
			Title  string `gorm:"column:title;type:text;not null"`
			Genres string `gorm:"column:genres;type:json;not null;default:'[]'"`
		}
		type Ratings struct {
			UserId    string    `gorm:"column:user_id;type:varchar(256);not null;primaryKey"`
			ItemId    string    `gorm:"column:item_id;type:varchar(256);not null;primaryKey"`
			Timestamp time.Time `gorm:"column:time_stamp;type:datetime;not null;primaryKey"`
			Rating    float32   `gorm:"column:rating;type:real;not null"`
		}
		if err := d.gormDB.Table(d.MoviesTable()).AutoMigrate(Movies{}); err != nil {
			return errors.Trace(err)
		}
		if err := d.gormDB.Table(d.RatingsTable()).AutoMigrate(Ratings{}); err != nil {
			return errors.Trace(err)
		}
	case ClickHouse:
		type Movies struct {
			ItemId string `gorm:"column:item_id;type:String"`
			Title  string `gorm:"column:title;type:String"`
			Genres string `gorm:"column:genres;type:String default '[]'"`
		}
		if err := d.gormDB.Set("gorm:table_options", "ENGINE = ReplacingMergeTree() ORDER BY item_id").
			Table(d.MoviesTable()).AutoMigrate(Movies{}); err != nil {
			return errors.Trace(err)
		}
		type Ratings struct {
			UserId    string    `gorm:"column:user_id;type:String"`
			ItemId    string    `gorm:"column:item_id;type:String"`
			Timestamp time.Time `gorm:"column:time_stamp;type:DateTime"`
			Rating    float32   `gorm:"column:rating;type:Float32"`
		}
		if err := d.gormDB.Set("gorm:table_options", "ENGINE = ReplacingMergeTree() ORDER BY (user_id, item_id, time_stamp)").
			Table(d.RatingsTable()).AutoMigrate(Ratings{}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (d *SQLDatabase) Ping() error {
	return d.client.Ping()
}

// Close the connection.
func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

// Purge removes all movies and ratings.
func (d *SQLDatabase) Purge() error {
	tables := []string{d.MoviesTable(), d.RatingsTable()}
	for _, tableName := range tables {
		var err error
		if d.driver == ClickHouse {
			err = d.gormDB.Exec("ALTER TABLE " + tableName + " DELETE WHERE 1=1").Error
		} else {
			err = d.gormDB.Exec("DELETE FROM " + tableName).Error
		}
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// BatchInsertMovies inserts movies. Existing movies are overwritten.
func (d *SQLDatabase) BatchInsertMovies(ctx context.Context, movies []Movie) error {
	if len(movies) == 0 {
		return nil
	}
	start := time.Now()
	rows := make([]SQLMovie, len(movies))
	for i, movie := range movies {
		genres, err := json.Marshal(movie.Genres)
		if err != nil {
			return errors.Trace(err)
		}
		rows[i] = SQLMovie{ItemId: movie.ItemId, Title: movie.Title, Genres: string(genres)}
	}
	db := d.gormDB.WithContext(ctx).Table(d.MoviesTable())
	if d.driver != ClickHouse {
		db = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "genres"}),
		})
	}
	if err := db.Create(&rows).Error; err != nil {
		return errors.Trace(err)
	}
	BatchInsertMoviesSeconds.Observe(time.Since(start).Seconds())
	return nil
}

// BatchInsertRatings inserts ratings. A rating with the same user, movie and timestamp is overwritten.
func (d *SQLDatabase) BatchInsertRatings(ctx context.Context, ratings []Rating) error {
	if len(ratings) == 0 {
		return nil
	}
	start := time.Now()
	rows := make([]SQLRating, len(ratings))
	for i, rating := range ratings {
		rows[i] = SQLRating{
			UserId:    rating.UserId,
			ItemId:    rating.ItemId,
			Rating:    rating.Rating,
			Timestamp: rating.Timestamp.In(time.UTC),
		}
	}
	db := d.gormDB.WithContext(ctx).Table(d.RatingsTable())
	if d.driver != ClickHouse {
		db = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}, {Name: "time_stamp"}},
			DoUpdates: clause.AssignmentColumns([]string{"rating"}),
		})
	}
	if err := db.Create(&rows).Error; err != nil {
		return errors.Trace(err)
	}
	BatchInsertRatingsSeconds.Observe(time.Since(start).Seconds())
	return nil
}

// fromTable merges duplicated rows of ReplacingMergeTree tables on read.
func (d *SQLDatabase) fromTable(tableName string) string {
	if d.driver == ClickHouse {
		return tableName + " FINAL"
	}
	return tableName
}

func (d *SQLDatabase) CountMovies(ctx context.Context) (int, error) {
	var count int64
	if err := d.gormDB.WithContext(ctx).Raw("SELECT COUNT(*) FROM " + d.fromTable(d.MoviesTable())).Scan(&count).Error; err != nil {
		return 0, errors.Trace(err)
	}
	return int(count), nil
}

func (d *SQLDatabase) CountRatings(ctx context.Context) (int, error) {
	var count int64
	if err := d.gormDB.WithContext(ctx).Raw("SELECT COUNT(*) FROM " + d.fromTable(d.RatingsTable())).Scan(&count).Error; err != nil {
		return 0, errors.Trace(err)
	}
	return int(count), nil
}

// GetMovies returns all movies ordered by item id.
func (d *SQLDatabase) GetMovies(ctx context.Context) ([]Movie, error) {
	start := time.Now()
	result, err := d.gormDB.WithContext(ctx).
		Raw("SELECT item_id, title, genres FROM " + d.fromTable(d.MoviesTable()) + " ORDER BY item_id").
		Rows()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer result.Close()
	var movies []Movie
	for result.Next() {
		var row SQLMovie
		if err = d.gormDB.ScanRows(result, &row); err != nil {
			return nil, errors.Trace(err)
		}
		movie := Movie{ItemId: row.ItemId, Title: row.Title}
		if err = json.Unmarshal([]byte(row.Genres), &movie.Genres); err != nil {
			return nil, errors.Trace(err)
		}
		movies = append(movies, movie)
	}
	if err = result.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	GetMoviesSeconds.Observe(time.Since(start).Seconds())
	return movies, nil
}

// GetRatings returns all ratings ordered by user, movie and timestamp.
func (d *SQLDatabase) GetRatings(ctx context.Context) ([]Rating, error) {
	start := time.Now()
	result, err := d.gormDB.WithContext(ctx).
		Raw("SELECT user_id, item_id, rating, time_stamp FROM " + d.fromTable(d.RatingsTable()) + " ORDER BY user_id, item_id, time_stamp").
		Rows()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer result.Close()
	var ratings []Rating
	for result.Next() {
		var row SQLRating
		if err = d.gormDB.ScanRows(result, &row); err != nil {
			return nil, errors.Trace(err)
		}
		ratings = append(ratings, Rating{
			UserId:    row.UserId,
			ItemId:    row.ItemId,
			Rating:    row.Rating,
			Timestamp: row.Timestamp,
		})
	}
	if err = result.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	GetRatingsSeconds.Observe(time.Since(start).Seconds())
	return ratings, nil
}
