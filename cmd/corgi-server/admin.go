package main

import (
	"encoding/json"
	"net/http"

	"corgi-rpc/container"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type functionInfo struct {
	Name    string            `json:"name"`
	Params  []container.Param `json:"params"`
	Returns string            `json:"returns,omitempty"`
}

// adminRouter serves metrics, the function table and a liveness probe.
func adminRouter(c *container.Container, gatherer prometheus.Gatherer) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).
		Methods(http.MethodGet)

	router.HandleFunc("/functions", func(w http.ResponseWriter, r *http.Request) {
		infos := make([]functionInfo, 0, c.Len())
		for _, name := range c.Names() {
			fn, _ := c.Find(name)
			infos = append(infos, functionInfo{Name: name, Params: fn.Params, Returns: string(fn.ReturnType)})
		}
		writeJSON(w, infos)
	}).Methods(http.MethodGet)

	router.HandleFunc("/functions/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		fn, ok := c.Find(name)
		if !ok {
			http.Error(w, "unknown function "+name, http.StatusNotFound)
			return
		}
		writeJSON(w, functionInfo{Name: name, Params: fn.Params, Returns: string(fn.ReturnType)})
	}).Methods(http.MethodGet)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return router
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
