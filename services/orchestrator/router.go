// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apache/airavata-sub033/lib/orchestrator"
	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

type router struct {
	handler *orchestrator.Handler
	mux     *httprouter.Router
}

func newRouter(handler *orchestrator.Handler, reg *prometheus.Registry) *router {
	rtr := &router{
		handler: handler,
		mux:     httprouter.New(),
	}
	rtr.mux.POST("/api/v1/experiments/:id/launch", rtr.launchExperiment)
	rtr.mux.POST("/api/v1/experiments/:id/terminate", rtr.terminateExperiment)
	rtr.mux.POST("/api/v1/experiments/:id/fetch-outputs", rtr.fetchOutputs)
	rtr.mux.GET("/_health/ping", rtr.ping)
	rtr.mux.Handler("GET", "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return rtr
}

func (rtr *router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	rtr.mux.ServeHTTP(w, req)
}

func (rtr *router) launchExperiment(w http.ResponseWriter, req *http.Request, params httprouter.Params) {
	experimentID := params.ByName("id")
	gatewayID := req.FormValue("gatewayID")
	launched, err := rtr.handler.LaunchExperiment(req.Context(), experimentID, gatewayID)
	if err != nil {
		sendError(w, req, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{"launched": launched})
}

func (rtr *router) terminateExperiment(w http.ResponseWriter, req *http.Request, params httprouter.Params) {
	experimentID := params.ByName("id")
	gatewayID := req.FormValue("gatewayID")
	if err := rtr.handler.TerminateExperiment(req.Context(), experimentID, gatewayID); err != nil {
		sendError(w, req, err)
		return
	}
	sendJSON(w, http.StatusAccepted, map[string]interface{}{"terminating": true})
}

func (rtr *router) fetchOutputs(w http.ResponseWriter, req *http.Request, params httprouter.Params) {
	experimentID := params.ByName("id")
	gatewayID := req.FormValue("gatewayID")
	var body struct {
		OutputNames []string `json:"outputNames"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		sendJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := rtr.handler.FetchIntermediateOutputs(req.Context(), experimentID, gatewayID, body.OutputNames); err != nil {
		sendError(w, req, err)
		return
	}
	sendJSON(w, http.StatusAccepted, map[string]interface{}{"fetching": true})
}

func (rtr *router) ping(w http.ResponseWriter, req *http.Request, params httprouter.Params) {
	sendJSON(w, http.StatusOK, map[string]interface{}{"health": "OK"})
}

func sendError(w http.ResponseWriter, req *http.Request, err error) {
	code := http.StatusInternalServerError
	switch err.(type) {
	case *airavata.ValidationError, *airavata.ConfigError:
		code = http.StatusBadRequest
	case *airavata.NotFoundError:
		code = http.StatusNotFound
	}
	ctxlog.FromContext(req.Context()).WithError(err).WithField("Status", code).Info("request failed")
	sendJSON(w, code, map[string]interface{}{"error": err.Error()})
}

func sendJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
