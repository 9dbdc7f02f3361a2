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

package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/google/uuid"
	"github.com/gorse-io/flicks/base/log"
	"github.com/gorse-io/flicks/config"
	"github.com/gorse-io/flicks/dataset"
	"github.com/gorse-io/flicks/logics"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/emicklei/go-restful/otelrestful"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// RestServer implements a REST-ful API server.
type RestServer struct {
	Config      *config.Config
	Recommender *logics.Recommender
	WebService  *restful.WebService
	ready       *atomic.Bool
}

func NewRestServer(cfg *config.Config, recommender *logics.Recommender) *RestServer {
	return &RestServer{
		Config:      cfg,
		Recommender: recommender,
		WebService:  new(restful.WebService),
		ready:       atomic.NewBool(false),
	}
}

// HealthStatus reports whether the server is ready to answer recommendations.
type HealthStatus struct {
	Ready       bool `json:"ready"`
	ModelLoaded bool `json:"model_loaded"`
	NumMovies   int  `json:"num_movies"`
}

// Handler registers the web service, the OpenAPI spec and the metrics endpoint into a new container.
func (s *RestServer) Handler() *restful.Container {
	s.CreateWebService()
	container := restful.NewContainer()
	container.Add(s.WebService)
	specConfig := restfulspec.Config{
		WebServices: container.RegisteredWebServices(),
		APIPath:     "/apidocs.json",
	}
	container.Add(restfulspec.NewOpenAPIService(specConfig))
	container.Handle("/metrics", promhttp.Handler())
	return container
}

// StartHttpServer starts the REST-ful API server.
func (s *RestServer) StartHttpServer() {
	container := s.Handler()
	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	log.Logger().Info("start http server", zap.String("url", "http://"+addr))
	log.Logger().Fatal("failed to start http server", zap.Error(http.ListenAndServe(addr, container)))
}

// LogFilter tags every request with a request id and logs it once handled.
func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	requestId := req.Request.Header.Get("X-Request-ID")
	if requestId == "" {
		requestId = uuid.NewString()
	}
	resp.Header().Set("X-Request-ID", requestId)
	start := time.Now()
	chain.ProcessFilter(req, resp)
	RequestSeconds.WithLabelValues(req.Request.Method, req.SelectedRoutePath(), strconv.Itoa(resp.StatusCode())).
		Observe(time.Since(start).Seconds())
	if req.Request.URL.Path != "/api/health" {
		log.ResponseLogger(resp).Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
			zap.Int("status_code", resp.StatusCode()),
			zap.Duration("used_time", time.Since(start)))
	}
}

// CreateWebService creates web service.
func (s *RestServer) CreateWebService() {
	ws := s.WebService
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/api/")
	ws.Filter(otelrestful.OTelFilter("flicks"))
	ws.Filter(LogFilter)

	ws.Route(ws.GET("/health").To(s.getHealth).
		Doc("Get readiness of the server.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Writes(HealthStatus{}))
	// Get movies
	ws.Route(ws.GET("/movies").To(s.getMovies).
		Doc("Get movies in the catalog.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"movie"}).
		Param(ws.QueryParameter("offset", "offset of the list").DataType("int")).
		Param(ws.QueryParameter("n", "number of returned movies, all movies if not positive").DataType("int")).
		Writes([]dataset.Movie{}))
	// Get the default query
	ws.Route(ws.GET("/query/default").To(s.getDefaultQuery).
		Doc("Get the sample ratings used when a request carries no ratings.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Writes(logics.Query{}))
	// Recommend by neighborhood
	ws.Route(ws.POST("/recommend/neighborhood").To(s.recommendNeighborhood).
		Doc("Recommend movies by user-based collaborative filtering.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.QueryParameter("k", "number of neighbors").DataType("int")).
		Param(ws.QueryParameter("n", "number of returned movies").DataType("int")).
		Param(ws.QueryParameter("normalize", "center ratings by each user's mean").DataType("boolean")).
		Reads(logics.Query{}).
		Writes([]logics.Score{}))
	// Recommend by factorization
	ws.Route(ws.POST("/recommend/factorization").To(s.recommendFactorization).
		Doc("Recommend movies by non-negative matrix factorization.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.QueryParameter("n", "number of returned movies").DataType("int")).
		Reads(logics.Query{}).
		Writes([]logics.Score{}))
}

// ParseInt parses integers from the query parameter.
func ParseInt(request *restful.Request, name string, fallback int) (value int, err error) {
	valueString := request.QueryParameter(name)
	value, err = strconv.Atoi(valueString)
	if err != nil && valueString == "" {
		value = fallback
		err = nil
	}
	return
}

// ParseBool parses booleans from the query parameter.
func ParseBool(request *restful.Request, name string, fallback bool) (value bool, err error) {
	valueString := request.QueryParameter(name)
	value, err = strconv.ParseBool(valueString)
	if err != nil && valueString == "" {
		value = fallback
		err = nil
	}
	return
}

// SetReady marks the server ready once the rating matrix is built.
func (s *RestServer) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *RestServer) getHealth(_ *restful.Request, response *restful.Response) {
	status := HealthStatus{
		Ready:       s.ready.Load(),
		ModelLoaded: s.Recommender.Model() != nil,
		NumMovies:   len(s.Recommender.Movies()),
	}
	if !status.Ready {
		response.Header().Set("Access-Control-Allow-Origin", "*")
		if err := response.WriteHeaderAndJson(http.StatusServiceUnavailable, status, restful.MIME_JSON); err != nil {
			log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
		}
		return
	}
	Ok(response, status)
}

func (s *RestServer) getMovies(request *restful.Request, response *restful.Response) {
	var offset, n int
	var err error
	if offset, err = ParseInt(request, "offset", 0); err != nil {
		BadRequest(response, err)
		return
	}
	if n, err = ParseInt(request, "n", 0); err != nil {
		BadRequest(response, err)
		return
	}
	if offset < 0 {
		BadRequest(response, errors.NotValidf("offset = %d", offset))
		return
	}
	movies := s.Recommender.Movies()
	if offset > len(movies) {
		offset = len(movies)
	}
	end := len(movies)
	if n > 0 && n < end-offset {
		end = offset + n
	}
	Ok(response, movies[offset:end])
}

func (s *RestServer) getDefaultQuery(_ *restful.Request, response *restful.Response) {
	Ok(response, logics.DefaultQuery())
}

// readQuery decodes the ratings in the request body. An empty body or an empty object
// stands for the default query.
func readQuery(request *restful.Request) (logics.Query, error) {
	body, err := io.ReadAll(request.Request.Body)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return logics.DefaultQuery(), nil
	}
	var q logics.Query
	if err = json.Unmarshal(body, &q); err != nil {
		return nil, errors.NewNotValid(err, "failed to decode ratings")
	}
	if len(q) == 0 {
		return logics.DefaultQuery(), nil
	}
	return q, nil
}

func (s *RestServer) recommendNeighborhood(request *restful.Request, response *restful.Response) {
	var k, n int
	var normalize bool
	var err error
	if k, err = ParseInt(request, "k", s.Config.Recommend.K); err != nil {
		BadRequest(response, err)
		return
	}
	if n, err = ParseInt(request, "n", s.Config.Server.DefaultN); err != nil {
		BadRequest(response, err)
		return
	}
	if normalize, err = ParseBool(request, "normalize", s.Config.Recommend.Normalize); err != nil {
		BadRequest(response, err)
		return
	}
	q, err := readQuery(request)
	if err != nil {
		Error(response, err)
		return
	}
	scores, err := s.Recommender.Neighborhood(request.Request.Context(), q, normalize, k, n)
	if err != nil {
		Error(response, err)
		return
	}
	Ok(response, scores)
}

func (s *RestServer) recommendFactorization(request *restful.Request, response *restful.Response) {
	n, err := ParseInt(request, "n", s.Config.Server.DefaultN)
	if err != nil {
		BadRequest(response, err)
		return
	}
	q, err := readQuery(request)
	if err != nil {
		Error(response, err)
		return
	}
	scores, err := s.Recommender.Factorization(request.Request.Context(), q, n)
	if err != nil {
		Error(response, err)
		return
	}
	Ok(response, scores)
}

// Error maps an error to the status code of its kind.
func Error(response *restful.Response, err error) {
	switch {
	case errors.Is(err, errors.NotValid):
		BadRequest(response, err)
	case errors.Is(err, errors.NotFound):
		PageNotFound(response, err)
	case errors.Is(err, errors.NotProvisioned):
		ServiceUnavailable(response, err)
	default:
		InternalServerError(response, err)
	}
}

// BadRequest returns a bad request error.
func BadRequest(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("bad request", zap.Error(err))
	if err = response.WriteError(http.StatusBadRequest, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// InternalServerError returns a internal server error.
func InternalServerError(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("internal server error", zap.Error(err))
	if err = response.WriteError(http.StatusInternalServerError, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// ServiceUnavailable returns a service unavailable error.
func ServiceUnavailable(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Warn("service unavailable", zap.Error(err))
	if err = response.WriteError(http.StatusServiceUnavailable, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// PageNotFound returns a not found error.
func PageNotFound(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteError(http.StatusNotFound, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// Ok sends the content as JSON to the client.
func Ok(response *restful.Response, content interface{}) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}
