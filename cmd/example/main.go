package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	_ "net/http/pprof"
	"os"

	"go.miragespace.co/inline"
	"go.miragespace.co/inline/config"
	"go.miragespace.co/inline/source"
	"go.miragespace.co/inline/source/fs"
	"go.miragespace.co/inline/source/remote"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// usage: example [addr] [static dir] [config.hcl]
func main() {
	args := os.Args

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}

	static := "."
	if len(args) > 2 {
		static = args[2]
	}

	cfg := config.Default()
	if len(args) > 3 {
		cfg, err = config.Load(args[3])
		if err != nil {
			panic(err)
		}
	}

	src := source.NewMux().
		Handle(source.Prefix("http://", "https://"), remote.NewRemoteSource(logger, nil)).
		Handle(source.Any, fs.NewDirSource(static))

	rt, err := inline.NewRuntime(logger, inline.Options{
		Config: cfg,
		Source: src,
	})
	if err != nil {
		panic(err)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Mount("/debug", middleware.Profiler())
	router.Post("/render", renderPage(logger, rt))
	router.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rt.Stats())
	})

	addr := ":8081"
	if len(args) > 1 {
		addr = args[1]
	}

	logger.Info("ready", zap.String("addr", addr), zap.String("static", static))

	http.ListenAndServe(addr, router)
}

func renderPage(logger *zap.Logger, rt *inline.Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form *multipart.Reader
		form, err := r.MultipartReader()
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, "Request is not multipart")
			return
		}

		var p *multipart.Part
		p, err = form.NextPart()
		if err == io.EOF {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, "Expecting \"file\" field in request")
			return
		}
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, err)
			return
		}

		if p.FormName() != "file" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, "Expecting \"file\" field in request")
			return
		}

		res, err := rt.Render(r.Context(), p.FileName(), p)
		if err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprintf(w, "Error rendering page: %v", err)
			return
		}

		logger.Info("page rendered",
			zap.String("filename", p.FileName()),
			zap.Int("size", len(res.HTML)),
			zap.Int("errors", len(res.Errors)),
		)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
	}
}
