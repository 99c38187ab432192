package main

import (
	"github.com/gorilla/mux"
)

func SetupRouter(c *Collector) *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	// session routes
	api.HandleFunc("/visit/create", c.CreateVisit).Methods("POST")
	api.HandleFunc("/visit/end", c.EndVisit).Methods("POST")

	// activity routes
	api.HandleFunc("/hit/create", c.CreateHit).Methods("POST")
	api.HandleFunc("/hit/end", c.EndHit).Methods("POST")
	api.HandleFunc("/event/create", c.CreateEvent).Methods("POST")

	// batch routes
	api.HandleFunc("/batch/create", c.CreateBatch).Methods("POST")
	api.HandleFunc("/offline/create", c.CreateOffline).Methods("POST")

	// push routes
	api.HandleFunc("/visitor/setPushData", c.SetPushData).Methods("POST")
	api.HandleFunc("/visitor/unregister", c.Unregister).Methods("POST")

	// failure injection for trying out the client's retry paths
	router.HandleFunc("/admin/fail/{status:[0-9]{3}}", c.InjectFailure).Methods("POST")
	router.HandleFunc("/admin/fail", c.ClearFailure).Methods("DELETE")
	router.HandleFunc("/admin/sessions", c.ListSessions).Methods("GET")

	return router
}
