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

package config

import (
	"context"
	"runtime"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/flicks/base/log"
	"github.com/juju/errors"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const (
	BlobPOSIX = "posix"
	BlobS3    = "s3"
	BlobGCS   = "gcs"
	BlobAzure = "azure"
)

// Config is the configuration for flicks.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Dataset   DatasetConfig   `mapstructure:"dataset"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	NMF       NMFConfig       `mapstructure:"nmf"`
	Server    ServerConfig    `mapstructure:"server"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// DatabaseConfig is the configuration for the data store. Ratings are read from CSV files
// when the data store is empty.
type DatabaseConfig struct {
	DataStore   string `mapstructure:"data_store" validate:"omitempty,data_store"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// DatasetConfig locates the MovieLens style CSV files.
type DatasetConfig struct {
	MoviePath  string `mapstructure:"movie_path"`
	RatingPath string `mapstructure:"rating_path"`
}

type BlobConfig struct {
	Type  string          `mapstructure:"type" validate:"oneof=posix s3 gcs azure"`
	Dir   string          `mapstructure:"dir"`
	S3    S3Config        `mapstructure:"s3"`
	GCS   GCSConfig       `mapstructure:"gcs"`
	Azure AzureBlobConfig `mapstructure:"azure"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
}

type GCSConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
}

type AzureBlobConfig struct {
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Endpoint         string `mapstructure:"endpoint"`
	Container        string `mapstructure:"container"`
	Prefix           string `mapstructure:"prefix"`
}

// RecommendConfig holds the defaults of both recommendation pipelines.
type RecommendConfig struct {
	Normalize     bool          `mapstructure:"normalize"`
	K             int           `mapstructure:"k" validate:"gte=0"`
	N             int           `mapstructure:"n" validate:"gt=0"`
	Jobs          int           `mapstructure:"jobs" validate:"gt=0"`
	MinRating     float32       `mapstructure:"min_rating"`
	MaxRating     float32       `mapstructure:"max_rating" validate:"gtefield=MinRating"`
	NeutralRating float32       `mapstructure:"neutral_rating"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
}

// NMFConfig names the factorization artifact and the hyper-parameters used to train it.
type NMFConfig struct {
	ModelName       string  `mapstructure:"model_name" validate:"required"`
	N               int     `mapstructure:"n" validate:"gt=0"`
	NFactors        int     `mapstructure:"n_factors" validate:"gt=0"`
	NEpochs         int     `mapstructure:"n_epochs" validate:"gt=0"`
	TransformEpochs int     `mapstructure:"transform_epochs" validate:"gt=0"`
	RandomState     int64   `mapstructure:"random_state"`
	InitLow         float32 `mapstructure:"init_low" validate:"gte=0"`
	InitHigh        float32 `mapstructure:"init_high" validate:"gtfield=InitLow"`
}

type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"gte=0"`
	DefaultN int    `mapstructure:"default_n" validate:"gt=0"`
}

type TracingConfig struct {
	EnableTracing     bool    `mapstructure:"enable_tracing"`
	Exporter          string  `mapstructure:"exporter" validate:"oneof=otlp otlphttp zipkin"`
	CollectorEndpoint string  `mapstructure:"collector_endpoint"`
	Sampler           string  `mapstructure:"sampler" validate:"oneof=always never ratio"`
	Ratio             float64 `mapstructure:"ratio" validate:"gte=0,lte=1"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Dataset: DatasetConfig{
			MoviePath:  "data/movies.csv",
			RatingPath: "data/ratings.csv",
		},
		Blob: BlobConfig{
			Type: BlobPOSIX,
			Dir:  "models",
		},
		Recommend: RecommendConfig{
			Normalize:     true,
			K:             100,
			N:             5,
			Jobs:          runtime.NumCPU(),
			MinRating:     0,
			MaxRating:     5,
			NeutralRating: 3,
			CacheTTL:      time.Hour,
		},
		NMF: NMFConfig{
			ModelName:       "nmf_29_42_1111",
			N:               3,
			NFactors:        29,
			NEpochs:         200,
			TransformEpochs: 200,
			RandomState:     42,
			InitLow:         0,
			InitHigh:        1,
		},
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     8087,
			DefaultN: 5,
		},
		Tracing: TracingConfig{
			Exporter: "otlp",
			Sampler:  "always",
			Ratio:    1,
		},
	}
}

func (config *TracingConfig) NewTracerProvider() (trace.TracerProvider, error) {
	if !config.EnableTracing {
		return noop.NewTracerProvider(), nil
	}

	var exporter tracesdk.SpanExporter
	var err error
	switch config.Exporter {
	case "zipkin":
		exporter, err = zipkin.New(config.CollectorEndpoint)
		if err != nil {
			return nil, errors.Trace(err)
		}
	case "otlp":
		client := otlptracegrpc.NewClient(otlptracegrpc.WithInsecure(), otlptracegrpc.WithEndpoint(config.CollectorEndpoint))
		exporter, err = otlptrace.New(context.Background(), client)
		if err != nil {
			return nil, errors.Trace(err)
		}
	case "otlphttp":
		client := otlptracehttp.NewClient(otlptracehttp.WithInsecure(), otlptracehttp.WithEndpoint(config.CollectorEndpoint))
		exporter, err = otlptrace.New(context.Background(), client)
		if err != nil {
			return nil, errors.Trace(err)
		}
	default:
		return nil, errors.NotSupportedf("exporter %s", config.Exporter)
	}

	var sampler tracesdk.Sampler
	switch config.Sampler {
	case "always":
		sampler = tracesdk.AlwaysSample()
	case "never":
		sampler = tracesdk.NeverSample()
	case "ratio":
		sampler = tracesdk.TraceIDRatioBased(config.Ratio)
	default:
		return nil, errors.NotSupportedf("sampler %s", config.Sampler)
	}

	return tracesdk.NewTracerProvider(
		tracesdk.WithSampler(sampler),
		tracesdk.WithBatcher(exporter),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("flicks"),
		)),
	), nil
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [database]
	v.SetDefault("database.table_prefix", defaultConfig.Database.TablePrefix)
	// [dataset]
	v.SetDefault("dataset.movie_path", defaultConfig.Dataset.MoviePath)
	v.SetDefault("dataset.rating_path", defaultConfig.Dataset.RatingPath)
	// [blob]
	v.SetDefault("blob.type", defaultConfig.Blob.Type)
	v.SetDefault("blob.dir", defaultConfig.Blob.Dir)
	// [recommend]
	v.SetDefault("recommend.normalize", defaultConfig.Recommend.Normalize)
	v.SetDefault("recommend.k", defaultConfig.Recommend.K)
	v.SetDefault("recommend.n", defaultConfig.Recommend.N)
	v.SetDefault("recommend.jobs", defaultConfig.Recommend.Jobs)
	v.SetDefault("recommend.min_rating", defaultConfig.Recommend.MinRating)
	v.SetDefault("recommend.max_rating", defaultConfig.Recommend.MaxRating)
	v.SetDefault("recommend.neutral_rating", defaultConfig.Recommend.NeutralRating)
	v.SetDefault("recommend.cache_ttl", defaultConfig.Recommend.CacheTTL)
	// [nmf]
	v.SetDefault("nmf.model_name", defaultConfig.NMF.ModelName)
	v.SetDefault("nmf.n", defaultConfig.NMF.N)
	v.SetDefault("nmf.n_factors", defaultConfig.NMF.NFactors)
	v.SetDefault("nmf.n_epochs", defaultConfig.NMF.NEpochs)
	v.SetDefault("nmf.transform_epochs", defaultConfig.NMF.TransformEpochs)
	v.SetDefault("nmf.random_state", defaultConfig.NMF.RandomState)
	v.SetDefault("nmf.init_low", defaultConfig.NMF.InitLow)
	v.SetDefault("nmf.init_high", defaultConfig.NMF.InitHigh)
	// [server]
	v.SetDefault("server.host", defaultConfig.Server.Host)
	v.SetDefault("server.port", defaultConfig.Server.Port)
	v.SetDefault("server.default_n", defaultConfig.Server.DefaultN)
	// [tracing]
	v.SetDefault("tracing.exporter", defaultConfig.Tracing.Exporter)
	v.SetDefault("tracing.sampler", defaultConfig.Tracing.Sampler)
	v.SetDefault("tracing.ratio", defaultConfig.Tracing.Ratio)
}

type configBinding struct {
	key string
	env string
}

var bindings = []configBinding{
	{"database.data_store", "FLICKS_DATA_STORE"},
	{"database.table_prefix", "FLICKS_TABLE_PREFIX"},
	{"dataset.movie_path", "FLICKS_MOVIE_PATH"},
	{"dataset.rating_path", "FLICKS_RATING_PATH"},
	{"blob.type", "FLICKS_BLOB_TYPE"},
	{"blob.dir", "FLICKS_BLOB_DIR"},
	{"blob.s3.endpoint", "S3_ENDPOINT"},
	{"blob.s3.access_key_id", "S3_ACCESS_KEY_ID"},
	{"blob.s3.secret_access_key", "S3_SECRET_ACCESS_KEY"},
	{"blob.gcs.credentials_file", "GCS_CREDENTIALS_FILE"},
	{"blob.azure.account_name", "AZURE_STORAGE_ACCOUNT"},
	{"blob.azure.account_key", "AZURE_STORAGE_KEY"},
	{"blob.azure.connection_string", "AZURE_STORAGE_CONNECTION_STRING"},
	{"recommend.jobs", "FLICKS_RECOMMEND_JOBS"},
	{"nmf.model_name", "FLICKS_MODEL_NAME"},
	{"server.host", "FLICKS_SERVER_HOST"},
	{"server.port", "FLICKS_SERVER_PORT"},
}

// LoadConfig loads configuration from a toml file. Missing values are filled with defaults and
// environment variables override values in the file. An empty path loads defaults only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	for _, binding := range bindings {
		if err := v.BindEnv(binding.key, binding.env); err != nil {
			log.Logger().Fatal("failed to bind a Viper key to a ENV variable", zap.Error(err))
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "failed to read config %s", path)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}
