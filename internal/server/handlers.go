package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/w4lkr/shopsync/pkg/catalog"
	"github.com/w4lkr/shopsync/pkg/index"
	"github.com/w4lkr/shopsync/pkg/storage"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "missing q parameter", http.StatusBadRequest)
		return
	}

	results := s.Index.Search(query)
	if results == nil {
		results = []index.Result{}
	}
	json.NewEncoder(w).Encode(results)
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		items := s.Index.Items()
		if items == nil {
			items = []catalog.Item{}
		}
		json.NewEncoder(w).Encode(items)
		return
	}

	item, ok := s.Index.FindItem(name)
	if !ok {
		http.Error(w, "item not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(item)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats := s.Index.Categories()
	if cats == nil {
		cats = []catalog.Category{}
	}
	json.NewEncoder(w).Encode(cats)
}

type categoryResponse struct {
	Category catalog.Category `json:"category"`
	Items    []catalog.Item   `json:"items"`
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing name parameter", http.StatusBadRequest)
		return
	}

	cat, ok := s.Index.FindCategory(name)
	if !ok {
		http.Error(w, "category not found", http.StatusNotFound)
		return
	}
	items := s.Index.ItemsInCategory(cat.Name)
	if items == nil {
		items = []catalog.Item{}
	}
	json.NewEncoder(w).Encode(categoryResponse{Category: cat, Items: items})
}

type statsResponse struct {
	Items      int                   `json:"items"`
	Categories int                   `json:"categories"`
	Sources    []storage.SourceStats `json:"sources"`
	Changes    storage.ChangeStats   `json:"changes"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var resp statsResponse
	resp.Items, resp.Categories = s.Index.Counts()
	resp.Sources = []storage.SourceStats{}

	if s.History != nil {
		sources, err := s.History.GetStats(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if sources != nil {
			resp.Sources = sources
		}
		changes, err := s.History.GetChangeStats(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp.Changes = changes
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs := []catalog.SyncRun{}
	if s.History != nil {
		var err error
		runs, err = s.History.ListRuns(r.Context(), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if runs == nil {
			runs = []catalog.SyncRun{}
		}
	}
	json.NewEncoder(w).Encode(runs)
}
